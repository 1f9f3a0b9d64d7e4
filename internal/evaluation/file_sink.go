package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink overwrites a JSON file with the entire log on every write.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Path returns the output file.
func (s *FileSink) Path() string { return s.path }

// Write marshals every bucket, indented by four spaces, to a temp file in
// the same directory and renames it over the target.
func (s *FileSink) Write(_ context.Context, snap Snapshot) error {
	buckets := snap.Buckets
	if buckets == nil {
		buckets = map[string]Bucket{}
	}

	data, err := json.MarshalIndent(buckets, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal evaluation log: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
