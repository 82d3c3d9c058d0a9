// Package storagebackend defines the StorageBackend interface used by
// external archive transports (spec §6 ADD) and one implementation per
// transport family. Only `local` and `sftp` are fully exercised by
// tests; the others are thin, honestly-partial adapters wired to real
// client SDKs, since the spec scopes their full behavior out but asks
// that their interfaces be specified.
package storagebackend

import (
	"context"
	"io"
)

// StorageBackend is implemented by each concrete archive transport
// (local disk, SFTP, SCP, FTP, WebDAV, S3). Only its shape is in scope.
type StorageBackend interface {
	Open(ctx context.Context, path string) (io.WriteCloser, error)
	Stat(ctx context.Context, path string) (size int64, err error)
	Remove(ctx context.Context, path string) error
}
