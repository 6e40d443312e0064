package store

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Subdirectories of a Sink's output directory.
const (
	StepsDir    = "steps"
	EpisodesDir = "episodes"
)

// Sink writes step and episode rows into rotating Parquet files under
// outDir/steps and outDir/episodes. It is not safe for concurrent use.
type Sink struct {
	outDir      string
	rowsPerFile int
	logger      *slog.Logger

	steps    *Writer[StepRow]
	episodes *Writer[EpisodeRow]

	files []string
}

// NewSink creates a sink that starts a new step file every rowsPerFile rows.
// Episode files rotate at the same count.
func NewSink(outDir string, rowsPerFile int, logger *slog.Logger) (*Sink, error) {
	if outDir == "" {
		return nil, errors.New("output directory is required")
	}
	if rowsPerFile <= 0 {
		return nil, fmt.Errorf("rows per file must be positive, got %d", rowsPerFile)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sink{outDir: outDir, rowsPerFile: rowsPerFile, logger: logger}, nil
}

func (s *Sink) WriteSteps(rows []StepRow) error {
	for len(rows) > 0 {
		if s.steps == nil {
			w, err := NewWriter[StepRow](filepath.Join(s.outDir, StepsDir), "steps", StepSchema)
			if err != nil {
				return err
			}
			s.steps = w
		}
		n := min(len(rows), s.rowsPerFile-s.steps.Rows())
		if err := s.steps.Write(rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
		if s.steps.Rows() >= s.rowsPerFile {
			if err := s.finishSteps(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sink) WriteEpisodes(rows []EpisodeRow) error {
	for len(rows) > 0 {
		if s.episodes == nil {
			w, err := NewWriter[EpisodeRow](filepath.Join(s.outDir, EpisodesDir), "episodes", EpisodeSchema)
			if err != nil {
				return err
			}
			s.episodes = w
		}
		n := min(len(rows), s.rowsPerFile-s.episodes.Rows())
		if err := s.episodes.Write(rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
		if s.episodes.Rows() >= s.rowsPerFile {
			if err := s.finishEpisodes(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sink) finishSteps() error {
	path, n, err := s.steps.Finalize()
	s.steps = nil
	return s.published(path, n, err)
}

func (s *Sink) finishEpisodes() error {
	path, n, err := s.episodes.Finalize()
	s.episodes = nil
	return s.published(path, n, err)
}

func (s *Sink) published(path string, rows int, err error) error {
	if err != nil {
		return err
	}
	if path != "" {
		s.files = append(s.files, path)
		s.logger.Info("Wrote parquet", "path", path, "rows", rows)
	}
	return nil
}

// Close publishes any partly filled files and returns every file the sink
// wrote.
func (s *Sink) Close() ([]string, error) {
	var errs []error
	if s.steps != nil {
		errs = append(errs, s.finishSteps())
	}
	if s.episodes != nil {
		errs = append(errs, s.finishEpisodes())
	}
	return s.files, errors.Join(errs...)
}
