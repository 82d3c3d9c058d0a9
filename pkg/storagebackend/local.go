package storagebackend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local implements StorageBackend against a directory on the local
// filesystem, rooted at baseDir. Every path is joined under baseDir;
// callers are expected to pass worker-relative storage names, not
// absolute paths.
type Local struct {
	baseDir string
}

func NewLocal(baseDir string) *Local {
	return &Local{baseDir: baseDir}
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.baseDir, filepath.Clean(string(filepath.Separator)+path))
}

func (l *Local) Open(ctx context.Context, path string) (io.WriteCloser, error) {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("storagebackend(local): creating parent dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storagebackend(local): opening %s: %w", path, err)
	}
	return f, nil
}

func (l *Local) Stat(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(l.resolve(path))
	if err != nil {
		return 0, fmt.Errorf("storagebackend(local): stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func (l *Local) Remove(ctx context.Context, path string) error {
	if err := os.Remove(l.resolve(path)); err != nil {
		return fmt.Errorf("storagebackend(local): remove %s: %w", path, err)
	}
	return nil
}

var _ StorageBackend = (*Local)(nil)
