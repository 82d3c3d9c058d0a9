package serverio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/metrics"
	"github.com/cuemby/vaultline/pkg/protoerr"
	"github.com/cuemby/vaultline/pkg/session"
	"github.com/cuemby/vaultline/pkg/wireline"
)

// Transport names the kind of stream a ServerIO is bound to.
type Transport int

const (
	// TransportPlain is a bare TCP (or in-process pipe) connection.
	TransportPlain Transport = iota
	// TransportTLS is a TLS-upgraded connection.
	TransportTLS
	// TransportBatch is a non-socket, non-deadline-capable stream used
	// by offline/batch replay tooling (spec §9 supplemented feature:
	// the original ServerIOType enum carried a BATCH mode alongside
	// PLAIN/TLS for driving a connector against a recorded session).
	TransportBatch
)

// commandBufferSize bounds GetCommand's backlog, giving the writer side
// backpressure when the dispatcher falls behind (spec §5 "Suspension
// points" implies sendCommand never blocks; the bound lives here,
// between the reader loop and the dispatcher consuming GetCommand).
const commandBufferSize = 64

// defaultTimeout is applied by ExecuteCommand when the caller passes zero.
const defaultTimeout = 60 * time.Second

// resultSlot is the pending-result set's per-id entry (spec §4.5
// "Pending-result set"). Only the reader loop writes to its channel;
// teardown leaves slots alone and wakes waiters through closeCh.
type resultSlot struct {
	ch     chan wireline.Result
	closed bool
}

// ServerIO owns one full-duplex connection: the session established on
// it, the monotonic outbound id counter, the pending-result set, and
// the single reader goroutine that classifies inbound lines.
type ServerIO struct {
	transport Transport
	framer    *wireline.Framer
	session   *session.Session

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*resultSlot

	commands chan wireline.Command

	closed   atomic.Bool
	closeCh  chan struct{}
	closeErr error
}

// New binds a ServerIO to conn without exchanging a session; callers
// that need §4.2 semantics follow with StartSession or AcceptSession.
func New(transport Transport, conn io.ReadWriteCloser) *ServerIO {
	s := &ServerIO{
		transport: transport,
		framer:    wireline.NewFramer(conn),
		pending:   make(map[uint64]*resultSlot),
		commands:  make(chan wireline.Command, commandBufferSize),
		closeCh:   make(chan struct{}),
	}
	metrics.ConnectionsOpen.Inc()
	go s.readLoop()
	return s
}

// stdio adapts a separate Reader/Writer pair (typically os.Stdin/
// os.Stdout) into the io.ReadWriteCloser New expects, for
// TransportBatch connections that have no single underlying socket to
// close.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// NewBatchServerIO builds a TransportBatch ServerIO over a separate
// input/output stream pair, for offline/scripted operation against a
// recorded or piped session (spec §9 supplemented feature) rather than
// a live socket.
func NewBatchServerIO(r io.Reader, w io.Writer) *ServerIO {
	return New(TransportBatch, stdio{Reader: r, Writer: w})
}

// AcceptSession generates and sends the responder-side SESSION line,
// per spec §4.2. Call this on the worker/listener side of a connection.
func (s *ServerIO) AcceptSession() (*session.Session, error) {
	sess, err := session.Accept()
	if err != nil {
		return nil, fmt.Errorf("serverio: accepting session: %w", err)
	}
	if err := s.framer.SendLine(sess.Line()); err != nil {
		return nil, fmt.Errorf("serverio: sending SESSION line: %w", err)
	}
	s.session = sess
	return sess, nil
}

// StartSession consumes the single SESSION line the peer is required to
// send first, per spec §4.2/§4.6 "Connect". Call this on the connector
// side of a connection, before issuing any other command.
func (s *ServerIO) StartSession(ctx context.Context) (*session.Session, error) {
	result, line, err := s.framer.PollFrame()
	if err != nil {
		return nil, fmt.Errorf("serverio: reading SESSION line: %w", err)
	}
	if result != wireline.FrameLine {
		return nil, fmt.Errorf("serverio: expected SESSION line, got %v", result)
	}
	sess, err := session.Parse(line)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

// Session returns the session established by StartSession/AcceptSession,
// or nil if neither has run yet.
func (s *ServerIO) Session() *session.Session {
	return s.session
}

// readLoop is the single dedicated reader goroutine (spec §4.5
// "Concurrency contract"). It owns the framer's read side and routes
// each inbound line to either the command buffer or a pending waiter.
func (s *ServerIO) readLoop() {
	for {
		result, line, err := s.framer.PollFrame()
		switch result {
		case wireline.FrameLine:
			s.dispatchLine(line)
		case wireline.FramePeerClosed:
			s.teardown(protoerr.New(protoerr.Disconnected, "peer closed connection"))
			return
		case wireline.FrameTransient:
			continue
		case wireline.FrameFatal:
			s.teardown(fmt.Errorf("serverio: fatal framing error: %w", err))
			return
		}
	}
}

func (s *ServerIO) dispatchLine(line string) {
	switch wireline.Classify(line) {
	case wireline.KindCommand:
		cmd, err := wireline.ParseCommand(line)
		if err != nil {
			log.Logger.Warn().Err(err).Str("line", line).Msg("serverio: dropping malformed command line")
			return
		}
		select {
		case s.commands <- cmd:
		case <-s.closeCh:
		}
	case wireline.KindResult:
		res, err := wireline.ParseResult(line)
		if err != nil {
			log.Logger.Warn().Err(err).Str("line", line).Msg("serverio: dropping malformed result line")
			return
		}
		s.deliverResult(res)
	default:
		log.Logger.Warn().Str("line", line).Msg("serverio: dropping malformed line")
	}
}

// deliverResult routes a parsed result to its waiter, or holds it in
// the pending set if no waiter has registered yet (spec §4.5 "held
// until a waiter appears, to survive issue-then-wait races").
func (s *ServerIO) deliverResult(res wireline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.pending[res.ID]
	if !ok {
		slot = &resultSlot{ch: make(chan wireline.Result, 1)}
		s.pending[res.ID] = slot
	}
	slot.ch <- res
}

// SendCommand assigns a monotonic id, formats, writes atomically, and
// returns immediately without waiting for a result (spec §4.5).
func (s *ServerIO) SendCommand(name string, args ...wireline.Arg) (uint64, error) {
	if s.closed.Load() {
		return 0, protoerr.New(protoerr.Disconnected, "serverio is closed")
	}
	id := s.nextID.Add(1)
	body := wireline.FormatCommand(name, args...)
	if err := s.framer.SendLine(fmt.Sprintf("%d %s", id, body)); err != nil {
		return 0, fmt.Errorf("serverio: sending command: %w", err)
	}
	return id, nil
}

// GetCommand consumes one buffered inbound command line. It blocks
// until a command is available, ctx is done, or the ServerIO closes.
func (s *ServerIO) GetCommand(ctx context.Context) (wireline.Command, bool) {
	select {
	case cmd := <-s.commands:
		return cmd, true
	case <-ctx.Done():
		return wireline.Command{}, false
	case <-s.closeCh:
		select {
		case cmd := <-s.commands:
			return cmd, true
		default:
			return wireline.Command{}, false
		}
	}
}

// SendResult emits a result line corresponding to a previously received
// command id (spec §4.5).
func (s *ServerIO) SendResult(id uint64, completed bool, errorCode uint64, args ...wireline.Arg) error {
	if s.closed.Load() {
		return protoerr.New(protoerr.Disconnected, "serverio is closed")
	}
	completedFlag := 0
	if completed {
		completedFlag = 1
	}
	payload := wireline.FormatResultPayload(args...)
	line := fmt.Sprintf("%d %d %d", id, completedFlag, errorCode)
	if payload != "" {
		line += " " + payload
	}
	if err := s.framer.SendLine(line); err != nil {
		return fmt.Errorf("serverio: sending result: %w", err)
	}
	return nil
}

// registerWaiter returns the slot for id, creating it if the reader
// loop hasn't delivered a result yet, or consuming an already-held
// result if the reader loop got there first.
func (s *ServerIO) registerWaiter(id uint64) *resultSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.pending[id]
	if !ok {
		slot = &resultSlot{ch: make(chan wireline.Result, 1)}
		s.pending[id] = slot
	}
	return slot
}

func (s *ServerIO) forgetWaiter(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// WaitResult blocks until a result with the given id arrives or timeout
// elapses (spec §4.5). A zero timeout uses defaultTimeout.
func (s *ServerIO) WaitResult(id uint64, timeout time.Duration) (wireline.Result, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	slot := s.registerWaiter(id)
	defer s.forgetWaiter(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-slot.ch:
		return res, nil
	case <-timer.C:
		return wireline.Result{}, protoerr.New(protoerr.NetworkTimeout, "waiting for result id=%d", id)
	case <-s.closeCh:
		return wireline.Result{}, protoerr.New(protoerr.Disconnected, "serverio closed while waiting for result id=%d", id)
	}
}

// ExecuteCommand is SendCommand followed by a bounded WaitResult, per
// spec §4.5.
func (s *ServerIO) ExecuteCommand(timeout time.Duration, name string, args ...wireline.Arg) (wireline.Result, error) {
	id, err := s.SendCommand(name, args...)
	if err != nil {
		return wireline.Result{}, err
	}
	return s.WaitResult(id, timeout)
}

// teardown marks the ServerIO terminal, wakes every outstanding waiter
// with a disconnected error's zero-value result (the error is surfaced
// to WaitResult callers via closeCh, not via the slot channel), and
// closes closeCh so GetCommand callers unblock too.
func (s *ServerIO) teardown(err error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.closeErr = err
	close(s.closeCh)
	metrics.ConnectionsOpen.Dec()
}

// Close is the cancellation primitive (spec §4.5 "Cancellation"): it
// closes the underlying connection, which unblocks the reader loop's
// in-flight PollFrame, and tears down all waiters.
func (s *ServerIO) Close() error {
	err := s.framer.Close()
	s.teardown(fmt.Errorf("serverio: closed locally"))
	return err
}

// Err returns the reason the ServerIO became terminal, or nil if it is
// still open.
func (s *ServerIO) Err() error {
	if !s.closed.Load() {
		return nil
	}
	return s.closeErr
}
