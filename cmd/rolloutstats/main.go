// Command rolloutstats prints a summary of the parquet files written by
// rollout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/brensch/snekgym/logging"
	"github.com/brensch/snekgym/store"
)

func main() {
	dir := flag.String("dir", "data/rollouts", "Directory rollout wrote to")
	logFormat := flag.String("log-format", "text", "Log format: text, logfmt, json or pretty")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logFormat, "info")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := store.Summarize(ctx, *dir)
	if err != nil {
		logger.Error("Summarize failed", "dir", *dir, "error", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, *dir, sum)
}

func printSummary(w io.Writer, dir string, s store.Summary) {
	fmt.Fprintf(w, "Rollouts in %s\n", dir)
	fmt.Fprintf(w, "  step rows:       %d\n", s.Steps)
	fmt.Fprintf(w, "  episodes:        %d\n", s.Episodes)
	fmt.Fprintf(w, "  turns avg/max:   %.1f / %d\n", s.AvgTurns, s.MaxTurns)
	fmt.Fprintf(w, "  truncated:       %.1f%%\n", 100*s.TruncatedFrac)
	fmt.Fprintf(w, "  avg return:      %+.3f\n", s.AvgReturn)
	if len(s.Wins) > 0 {
		fmt.Fprintln(w, "  wins:")
		for _, id := range slices.Sorted(maps.Keys(s.Wins)) {
			fmt.Fprintf(w, "    %-16s %d\n", id, s.Wins[id])
		}
	}
	if len(s.Deaths) > 0 {
		fmt.Fprintln(w, "  deaths:")
		for _, cause := range slices.Sorted(maps.Keys(s.Deaths)) {
			fmt.Fprintf(w, "    %-16s %d\n", cause, s.Deaths[cause])
		}
	}
}
