// Package tsvlog appends tab-separated rows to durable session logs. Each
// sink owns one file; rows are flushed as they are written so an interrupt
// mid-session never leaves a truncated line behind.
package tsvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is an append-only tab-separated log file. The header row is written
// once when the file is first created; reopening an existing log appends
// below the prior rows.
type Sink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// Open opens (or creates) the log at path and writes header if the file is
// empty. Parent directories are created as needed.
func Open(path string, header []string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("tsvlog: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tsvlog: open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tsvlog: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("tsvlog: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("tsvlog: flush header: %w", err)
		}
	}
	return &Sink{f: f, w: w}, nil
}

// Append writes one row and flushes it to the file. Safe for concurrent use.
func (s *Sink) Append(record []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("tsvlog: write row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("tsvlog: flush row: %w", err)
	}
	return nil
}

// Close flushes any buffered output and closes the file. Further Appends
// will fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	flushErr := s.w.Error()
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("tsvlog: close: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("tsvlog: flush on close: %w", flushErr)
	}
	return nil
}
