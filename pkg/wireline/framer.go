package wireline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// MaxLineBytes bounds a single frame. The spec requires at least 64 KiB
// to carry base64-chunked archive writes; we give it headroom.
const MaxLineBytes = 1 << 20 // 1 MiB

// ErrLineTooLong is returned by PollFrame when a peer writes a line that
// exceeds MaxLineBytes without a newline. This is always fatal.
var ErrLineTooLong = errors.New("wireline: line exceeds maximum frame size")

// FrameResult classifies the outcome of one PollFrame call.
type FrameResult int

const (
	// FrameLine indicates a complete line was read; Line is valid.
	FrameLine FrameResult = iota
	// FramePeerClosed indicates the peer closed its write side (EOF).
	FramePeerClosed
	// FrameTransient indicates a recoverable error (e.g. a read
	// deadline expired); the caller should poll again.
	FrameTransient
	// FrameFatal indicates an unrecoverable framing error; the
	// ServerIO that owns this Framer must tear down the connection.
	FrameFatal
)

func (r FrameResult) String() string {
	switch r {
	case FrameLine:
		return "line"
	case FramePeerClosed:
		return "peerClosed"
	case FrameTransient:
		return "transient"
	case FrameFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Framer reads and writes newline-terminated lines over one connection.
// SendLine is safe for concurrent use; PollFrame is not — it is meant to
// be driven by exactly one reader goroutine, per the ServerIO contract.
type Framer struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader

	writeMu sync.Mutex
}

// NewFramer wraps conn (a net.Conn or an in-process pipe/batch stream).
func NewFramer(conn io.ReadWriteCloser) *Framer {
	return &Framer{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 4096),
	}
}

// SendLine writes s followed by a single newline. It is atomic with
// respect to other SendLine calls on the same Framer: the write side is
// a single short critical section bounded by one line.
func (f *Framer) SendLine(s string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := io.WriteString(f.conn, s); err != nil {
		return fmt.Errorf("wireline: send line: %w", err)
	}
	if _, err := io.WriteString(f.conn, "\n"); err != nil {
		return fmt.Errorf("wireline: send newline: %w", err)
	}
	return nil
}

// PollFrame blocks until one full line is available, the peer closes,
// a read deadline (if set on the underlying net.Conn) elapses, or a
// fatal framing error occurs. A trailing \r is stripped. Reads are
// capped at MaxLineBytes so a peer cannot exhaust memory by withholding
// the newline indefinitely.
func (f *Framer) PollFrame() (FrameResult, string, error) {
	var buf strings.Builder
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return FramePeerClosed, "", nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return FrameTransient, "", nil
			}
			return FrameFatal, "", fmt.Errorf("wireline: read line: %w", err)
		}
		if b == '\n' {
			break
		}
		buf.WriteByte(b)
		if buf.Len() > MaxLineBytes {
			return FrameFatal, "", ErrLineTooLong
		}
	}

	line := strings.TrimSuffix(buf.String(), "\r")
	return FrameLine, line, nil
}

// SetReadDeadline forwards to the underlying connection when it
// supports deadlines, enabling FrameTransient timeouts. Connections
// that don't support deadlines (e.g. a batch stream) simply never
// produce FrameTransient.
func (f *Framer) SetReadDeadline(t time.Time) error {
	if nc, ok := f.conn.(net.Conn); ok {
		return nc.SetReadDeadline(t)
	}
	return nil
}

// Close closes the underlying connection, unblocking any in-flight
// PollFrame call with an error or EOF.
func (f *Framer) Close() error {
	return f.conn.Close()
}
