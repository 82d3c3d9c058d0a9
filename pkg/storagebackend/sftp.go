package storagebackend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTP implements StorageBackend over an established SSH connection,
// rooted at baseDir on the remote host.
type SFTP struct {
	client  *sftp.Client
	baseDir string
}

// DialSFTP opens an SSH connection to addr and starts an SFTP session
// over it. The caller owns the returned SFTP's lifetime and must call
// Close when done.
func DialSFTP(addr string, config *ssh.ClientConfig, baseDir string) (*SFTP, error) {
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("storagebackend(sftp): dialing %s: %w", addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("storagebackend(sftp): starting session: %w", err)
	}
	return &SFTP{client: client, baseDir: baseDir}, nil
}

// NewSFTP wraps an already-established sftp.Client, for callers that
// manage the underlying ssh.Client themselves.
func NewSFTP(client *sftp.Client, baseDir string) *SFTP {
	return &SFTP{client: client, baseDir: baseDir}
}

func (s *SFTP) resolve(p string) string {
	return path.Join(s.baseDir, path.Clean("/"+p))
}

func (s *SFTP) Open(ctx context.Context, p string) (io.WriteCloser, error) {
	full := s.resolve(p)
	if err := s.client.MkdirAll(path.Dir(full)); err != nil {
		return nil, fmt.Errorf("storagebackend(sftp): creating parent dir for %s: %w", p, err)
	}
	f, err := s.client.OpenFile(full, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return nil, fmt.Errorf("storagebackend(sftp): opening %s: %w", p, err)
	}
	return f, nil
}

func (s *SFTP) Stat(ctx context.Context, p string) (int64, error) {
	info, err := s.client.Stat(s.resolve(p))
	if err != nil {
		return 0, fmt.Errorf("storagebackend(sftp): stat %s: %w", p, err)
	}
	return info.Size(), nil
}

func (s *SFTP) Remove(ctx context.Context, p string) error {
	if err := s.client.Remove(s.resolve(p)); err != nil {
		return fmt.Errorf("storagebackend(sftp): remove %s: %w", p, err)
	}
	return nil
}

// Close releases the underlying SFTP session. It does not close the
// SSH connection when constructed via NewSFTP.
func (s *SFTP) Close() error {
	return s.client.Close()
}

var _ StorageBackend = (*SFTP)(nil)
