package storagebackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/studio-b12/gowebdav"
)

// WebDAV implements StorageBackend against a WebDAV share, rooted at
// baseDir. Scope per spec §6 is interface-only: Open buffers the full
// write and calls Write on Close, gowebdav has no streaming PUT with
// incremental progress.
type WebDAV struct {
	client  *gowebdav.Client
	baseDir string
}

func NewWebDAV(client *gowebdav.Client, baseDir string) *WebDAV {
	return &WebDAV{client: client, baseDir: baseDir}
}

func (w *WebDAV) resolve(p string) string {
	return path.Join(w.baseDir, path.Clean("/"+p))
}

type webdavWriter struct {
	client *gowebdav.Client
	path   string
	buf    bytes.Buffer
}

func (w *webdavWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *webdavWriter) Close() error {
	if err := w.client.Write(w.path, w.buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("storagebackend(webdav): writing %s: %w", w.path, err)
	}
	return nil
}

func (w *WebDAV) Open(ctx context.Context, p string) (io.WriteCloser, error) {
	full := w.resolve(p)
	if err := w.client.MkdirAll(path.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("storagebackend(webdav): creating parent dir for %s: %w", p, err)
	}
	return &webdavWriter{client: w.client, path: full}, nil
}

func (w *WebDAV) Stat(ctx context.Context, p string) (int64, error) {
	info, err := w.client.Stat(w.resolve(p))
	if err != nil {
		return 0, fmt.Errorf("storagebackend(webdav): stat %s: %w", p, err)
	}
	return info.Size(), nil
}

func (w *WebDAV) Remove(ctx context.Context, p string) error {
	if err := w.client.Remove(w.resolve(p)); err != nil {
		return fmt.Errorf("storagebackend(webdav): remove %s: %w", p, err)
	}
	return nil
}

var _ StorageBackend = (*WebDAV)(nil)
