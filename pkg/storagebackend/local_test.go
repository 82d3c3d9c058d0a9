package storagebackend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalOpenWriteStat(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)
	ctx := context.Background()

	w, err := l.Open(ctx, "nested/archive.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.WriteString(w, "hello world"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	size, err := l.Stat(ctx, "nested/archive.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len("hello world")) {
		t.Fatalf("got size %d", size)
	}

	if _, err := os.Stat(filepath.Join(dir, "nested", "archive.bin")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
}

func TestLocalRemove(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)
	ctx := context.Background()

	w, err := l.Open(ctx, "gone.bin")
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	if err := l.Remove(ctx, "gone.bin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := l.Stat(ctx, "gone.bin"); err == nil {
		t.Fatal("expected Stat to fail after Remove")
	}
}

func TestLocalResolveRejectsEscapingBaseDir(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)
	full := l.resolve("../../etc/passwd")
	if !filepath.HasPrefix(full, dir) {
		t.Fatalf("resolved path escaped baseDir: %s", full)
	}
}
