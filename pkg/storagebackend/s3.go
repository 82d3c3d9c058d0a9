package storagebackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 implements StorageBackend against a single bucket. Its scope per
// spec §6 is interface-only: Open buffers the full write in memory and
// flushes on Close, rather than supporting true streaming or resumable
// multipart upload.
type S3 struct {
	client  *s3.Client
	bucket  string
	prefix  string
}

func NewS3(client *s3.Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3) key(p string) string {
	return path.Join(b.prefix, path.Clean("/"+p))
}

type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("storagebackend(s3): putting %s: %w", w.key, err)
	}
	return nil
}

func (b *S3) Open(ctx context.Context, p string) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, client: b.client, bucket: b.bucket, key: b.key(p)}, nil
}

func (b *S3) Stat(ctx context.Context, p string) (int64, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(p)),
	})
	if err != nil {
		return 0, fmt.Errorf("storagebackend(s3): head %s: %w", p, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (b *S3) Remove(ctx context.Context, p string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(p)),
	})
	if err != nil {
		return fmt.Errorf("storagebackend(s3): deleting %s: %w", p, err)
	}
	return nil
}

var _ StorageBackend = (*S3)(nil)
