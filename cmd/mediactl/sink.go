package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuongbtq/media-fetcher/internal/converter/delivery"
)

// fileSink writes a delivered artifact next to its destination and only
// renames it into place on commit, so a failed conversion leaves nothing behind.
type fileSink struct {
	dir  string
	path string
	meta delivery.Metadata
	tmp  *os.File
}

// newFileSink targets output, or the kind's filename inside dir when output is empty
func newFileSink(output, dir string) *fileSink {
	return &fileSink{dir: dir, path: output}
}

func (s *fileSink) SetMetadata(meta delivery.Metadata) {
	s.meta = meta
	if s.path == "" {
		s.path = filepath.Join(s.dir, meta.Filename)
	}
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.tmp == nil {
		if s.path == "" {
			return 0, errors.New("destination unknown before metadata")
		}
		tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.part")
		if err != nil {
			return 0, fmt.Errorf("create output file: %w", err)
		}
		s.tmp = tmp
	}
	return s.tmp.Write(p)
}

// Commit moves the finished artifact into place and returns its path
func (s *fileSink) Commit() (string, error) {
	if s.tmp == nil {
		return "", errors.New("no data was delivered")
	}
	tmp := s.tmp
	s.tmp = nil

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move output into place: %w", err)
	}
	return s.path, nil
}

// Abort discards anything written so far
func (s *fileSink) Abort() {
	if s.tmp == nil {
		return
	}
	s.tmp.Close()
	os.Remove(s.tmp.Name())
	s.tmp = nil
}
