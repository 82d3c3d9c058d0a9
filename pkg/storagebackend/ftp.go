package storagebackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/jlaffaye/ftp"
)

// FTP implements StorageBackend over a single pre-authenticated FTP
// control connection, rooted at baseDir. Scope per spec §6 is
// interface-only: Open buffers the full write and uploads it on Close,
// the jlaffaye/ftp client has no resumable streaming write primitive.
type FTP struct {
	conn    *ftp.ServerConn
	baseDir string
}

func NewFTP(conn *ftp.ServerConn, baseDir string) *FTP {
	return &FTP{conn: conn, baseDir: baseDir}
}

func (f *FTP) resolve(p string) string {
	return path.Join(f.baseDir, path.Clean("/"+p))
}

type ftpWriter struct {
	conn *ftp.ServerConn
	path string
	buf  bytes.Buffer
}

func (w *ftpWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *ftpWriter) Close() error {
	if err := w.conn.Stor(w.path, &w.buf); err != nil {
		return fmt.Errorf("storagebackend(ftp): storing %s: %w", w.path, err)
	}
	return nil
}

func (f *FTP) Open(ctx context.Context, p string) (io.WriteCloser, error) {
	return &ftpWriter{conn: f.conn, path: f.resolve(p)}, nil
}

func (f *FTP) Stat(ctx context.Context, p string) (int64, error) {
	size, err := f.conn.FileSize(f.resolve(p))
	if err != nil {
		return 0, fmt.Errorf("storagebackend(ftp): stat %s: %w", p, err)
	}
	return size, nil
}

func (f *FTP) Remove(ctx context.Context, p string) error {
	if err := f.conn.Delete(f.resolve(p)); err != nil {
		return fmt.Errorf("storagebackend(ftp): remove %s: %w", p, err)
	}
	return nil
}

var _ StorageBackend = (*FTP)(nil)
