// Package archive provides the compression codec hook point named in
// spec §6's `compress-algorithm` job option. It is deliberately narrow:
// no archive container format, no dedup, no delta encoding — those are
// explicit Non-goals. This package only wraps an io.Writer/io.Reader
// pair with a streaming zstd codec so that STORAGE_WRITE payloads can
// optionally pass through compression before reaching a StorageSink.
package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Algorithm identifies a compress-algorithm job option value.
type Algorithm string

const (
	AlgorithmNone Algorithm = "none"
	AlgorithmZstd Algorithm = "zstd"
)

// ParseAlgorithm maps a job-option string onto a known Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmNone, "":
		return AlgorithmNone, nil
	case AlgorithmZstd:
		return AlgorithmZstd, nil
	default:
		return "", fmt.Errorf("archive: unknown compress-algorithm %q", s)
	}
}

// Encoder wraps an underlying io.Writer with streaming compression
// (spec §6 compress-algorithm=zstd). Writes made to Encoder are
// compressed as they arrive; Close must be called to flush the final
// frame.
type Encoder struct {
	algorithm Algorithm
	zw        *zstd.Encoder
	dst       io.Writer
}

// NewEncoder wraps dst according to algorithm. AlgorithmNone returns a
// pass-through Encoder with no compression overhead.
func NewEncoder(dst io.Writer, algorithm Algorithm) (*Encoder, error) {
	if algorithm == AlgorithmNone {
		return &Encoder{algorithm: algorithm, dst: dst}, nil
	}
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return nil, fmt.Errorf("archive: constructing zstd encoder: %w", err)
	}
	return &Encoder{algorithm: algorithm, zw: zw, dst: dst}, nil
}

func (e *Encoder) Write(p []byte) (int, error) {
	if e.algorithm == AlgorithmNone {
		return e.dst.Write(p)
	}
	return e.zw.Write(p)
}

// Close flushes and closes the underlying zstd frame. It is a no-op
// for AlgorithmNone; it never closes dst, whose lifetime is owned by
// the caller.
func (e *Encoder) Close() error {
	if e.algorithm == AlgorithmNone {
		return nil
	}
	return e.zw.Close()
}

// Decoder wraps an underlying io.Reader with streaming decompression,
// the STORAGE_READ-side inverse of Encoder. Not currently exercised by
// any wire command (spec's command set is write/append-only), but kept
// symmetric for the restore tooling layered on top of this module.
type Decoder struct {
	algorithm Algorithm
	zr        *zstd.Decoder
	src       io.Reader
}

func NewDecoder(src io.Reader, algorithm Algorithm) (*Decoder, error) {
	if algorithm == AlgorithmNone {
		return &Decoder{algorithm: algorithm, src: src}, nil
	}
	zr, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("archive: constructing zstd decoder: %w", err)
	}
	return &Decoder{algorithm: algorithm, zr: zr, src: src}, nil
}

func (d *Decoder) Read(p []byte) (int, error) {
	if d.algorithm == AlgorithmNone {
		return d.src.Read(p)
	}
	return d.zr.Read(p)
}

// Close releases the zstd decoder's internal goroutines. It is a
// no-op for AlgorithmNone.
func (d *Decoder) Close() error {
	if d.algorithm == AlgorithmNone {
		return nil
	}
	d.zr.Close()
	return nil
}
