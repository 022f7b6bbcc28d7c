package cursor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore keeps the cursor in a single state file.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Load reads the last saved sequence ID. A missing file loads as absent.
func (s *FileStore) Load(_ context.Context) (int64, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading cursor file %s: %w", s.path, err)
	}

	v, ok := parse(string(data))
	if !ok {
		s.logger.Warn("ignoring unparsable cursor file", zap.String("path", s.path))
	}
	return v, ok, nil
}

// Save writes the sequence ID to a temp file, syncs it and renames it over
// the state file, so a crash leaves either the old or the new value.
func (s *FileStore) Save(_ context.Context, sequenceID int64) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	_, err = f.WriteString(format(sequenceID) + "\n")
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return syncDir(dir)
}

func (s *FileStore) Close() error { return nil }

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening directory: %w", err)
	}
	defer func() { _ = d.Close() }()

	// Some filesystems refuse to fsync directories; the rename is still done.
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("syncing directory: %w", err)
	}
	return nil
}
