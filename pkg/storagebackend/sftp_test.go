package storagebackend

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/sftp"
)

// newTestSFTP wires an in-process sftp.Server to an sftp.Client over a
// pair of pipes, bypassing SSH entirely, the way github.com/pkg/sftp's
// own test suite pairs NewServer with NewClientPipe.
func newTestSFTP(t *testing.T, rootDir string) *SFTP {
	t.Helper()
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{serverRead, serverWrite}, sftp.WithServerWorkingDirectory(rootDir))
	if err != nil {
		t.Fatalf("sftp.NewServer: %v", err)
	}
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	if err != nil {
		t.Fatalf("sftp.NewClientPipe: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewSFTP(client, "/")
}

func TestSFTPOpenWriteStatRemove(t *testing.T) {
	dir := t.TempDir()
	s := newTestSFTP(t, dir)
	ctx := context.Background()

	w, err := s.Open(ctx, "reports/weekly.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.WriteString(w, "payload"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	size, err := s.Stat(ctx, "reports/weekly.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len("payload")) {
		t.Fatalf("got size %d", size)
	}

	if err := s.Remove(ctx, "reports/weekly.bin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Stat(ctx, "reports/weekly.bin"); err == nil {
		t.Fatal("expected Stat to fail after Remove")
	}
}
