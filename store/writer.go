package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

var fileSeq atomic.Uint64

// Writer streams rows of T into outDir/tmp and moves the finished file into
// outDir on Finalize, so readers globbing outDir never see a partial file.
type Writer[T any] struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[T]

	rows int
}

func NewWriter[T any](outDir, prefix, schema string) (*Writer[T], error) {
	if outDir == "" {
		return nil, errors.New("output directory is required")
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d_%04d.parquet", prefix, time.Now().UnixNano(), fileSeq.Add(1)%10000)
	tmpPath := filepath.Join(tmpDir, name)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[T](f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", schema)

	return &Writer[T]{
		tmpPath: tmpPath,
		outPath: filepath.Join(absOut, name),
		file:    f,
		writer:  w,
	}, nil
}

func (w *Writer[T]) OutPath() string { return w.outPath }
func (w *Writer[T]) Rows() int       { return w.rows }

func (w *Writer[T]) Write(rows []T) error {
	if w.writer == nil {
		return errors.New("parquet writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := w.writer.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rows += len(rows)
	return nil
}

// Finalize closes the file and publishes it. A file with no rows is removed
// and the returned path is empty.
func (w *Writer[T]) Finalize() (string, int, error) {
	if w.writer == nil {
		return "", 0, nil
	}
	closeErr := w.writer.Close()
	w.writer = nil
	_ = w.file.Sync()
	fileErr := w.file.Close()
	w.file = nil

	if err := errors.Join(closeErr, fileErr); err != nil {
		_ = os.Remove(w.tmpPath)
		return "", 0, fmt.Errorf("close parquet: %w", err)
	}
	if w.rows == 0 {
		_ = os.Remove(w.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(w.tmpPath, w.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return w.outPath, w.rows, nil
}

// WriteFileAtomic writes rows to a new file in outDir in one go.
func WriteFileAtomic[T any](outDir, prefix, schema string, rows []T) (string, error) {
	w, err := NewWriter[T](outDir, prefix, schema)
	if err != nil {
		return "", err
	}
	if err := w.Write(rows); err != nil {
		_, _, _ = w.Finalize()
		return "", err
	}
	path, _, err := w.Finalize()
	return path, err
}

// ReadFile loads every row of a file written by Writer.
func ReadFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
