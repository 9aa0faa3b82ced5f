// Package checkpoint persists the id of the last attempted work item so an
// interrupted sweep can resume where it stopped.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Store is the resume marker used by the run controller.
type Store interface {
	// Load returns the last attempted id, if any. It never fails: an
	// unreadable store is treated as absent.
	Load() (id int64, ok bool)
	// Save durably replaces the stored id.
	Save(id int64) error
	// Clear removes the marker. Clearing an absent marker is not an error.
	Clear() error
}

// FileStore keeps the id as decimal text in a single file.
type FileStore struct {
	path   string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (int64, bool) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false
	}
	if err != nil {
		s.logger.Warn("checkpoint unreadable; starting from the beginning", zap.String("path", s.path), zap.Error(err))
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		s.logger.Warn("checkpoint corrupt; starting from the beginning", zap.String("path", s.path), zap.Error(err))
		return 0, false
	}
	return id, true
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the checkpoint, so a crash leaves either the old or the new value.
func (s *FileStore) Save(id int64) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(strconv.FormatInt(id, 10)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("save checkpoint: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	syncDir(dir)
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// syncDir makes the rename durable on filesystems that need it. Errors are
// ignored: some platforms cannot fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
