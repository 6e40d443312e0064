// Package logging builds the *slog.Logger used by the command-line tools.
//
// Library packages never configure logging themselves; they take a
// *slog.Logger and default to discarding.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Formats accepted by New.
const (
	FormatText   = "text"
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// New returns a logger writing to w.
//
//   - text: colourised human output from charmbracelet/log
//   - logfmt: key=value lines from charmbracelet/log
//   - json: one JSON object per line from charmbracelet/log
//   - pretty: indented JSON objects with nested groups
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "", FormatText, FormatLogfmt, FormatJSON:
		opts := log.Options{
			Level:           log.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}
		switch strings.ToLower(format) {
		case FormatLogfmt:
			opts.Formatter = log.LogfmtFormatter
			opts.TimeFormat = time.RFC3339
		case FormatJSON:
			opts.Formatter = log.JSONFormatter
			opts.TimeFormat = time.RFC3339
		}
		return slog.New(log.NewWithOptions(w, opts)), nil
	case FormatPretty:
		return slog.New(NewPrettyHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	}
	return nil, fmt.Errorf("unknown log format %q (want text, logfmt, json or pretty)", format)
}

// ParseLevel accepts debug, info, warn and error in any case. An empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
