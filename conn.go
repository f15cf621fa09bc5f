// Package framechat provides an asynchronous point-to-point message client.
// Messages travel as frames with a 4-byte ASCII-decimal length header;
// concurrent producers are serialized into an ordered outbound queue while
// inbound frames are decoded and delivered continuously.
package framechat

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrInvalidMaxBodyLength is returned when the body limit does not fit the header.
	ErrInvalidMaxBodyLength = errors.New("max body length exceeds header capacity")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrBufferFull is returned by TryEnqueue when the mailbox cannot take
// another message without blocking.
var ErrBufferFull = errors.New("send buffer full")

// ErrQueueFull is returned when MaxQueueLengthOption is set and that many
// messages are already waiting to be written.
var ErrQueueFull = errors.New("outbound queue full")

// State is the lifecycle stage of a Conn.
type State int32

const (
	// StateConnecting is a constructed connection whose Run has not started.
	StateConnecting State = iota
	// StateOpen means both pipelines may be active.
	StateOpen
	// StateClosing means the transport is being torn down.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn represents a client connection to a single peer.
// It owns the transport, the outbound queue and both I/O pipelines.
type Conn struct {
	rawConn net.Conn
	reader  *bufio.Reader
	logger  Logger
	metrics *connMetrics

	opts options

	state   atomic.Int32
	pending atomic.Int64 // accepted by Enqueue, not yet written or dropped

	mailbox       chan outboundItem
	closeReq      chan struct{}
	closeOnce     sync.Once
	done          chan struct{}
	doneOnce      sync.Once
	transportOnce sync.Once
}

// outboundItem is a mailbox entry: a message to write, or a flush marker
// whose channel is closed when it reaches the front of the queue.
type outboundItem struct {
	msg     Message
	flushed chan struct{}
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the mailbox channel.
	defaultBufferSize = 64
)

// NewConn creates a new connection wrapper around an established transport.
// It applies the provided options and validates them before returning.
// Returns an error if the message handler is missing or a limit is invalid.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxBodyLength <= 0 {
		opts.maxBodyLength = DefaultMaxBodyLength
	}

	if opts.maxBodyLength > MaxHeaderValue {
		return ErrInvalidMaxBodyLength
	}

	if opts.maxQueueLength < 0 {
		opts.maxQueueLength = 0
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.codec == nil {
		opts.codec = NewFrameCodec(opts.maxBodyLength)
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.metrics == nil {
		opts.metrics = metrics.NewSet()
	}

	return nil
}

// newConnWithOptions creates a new Conn with the given options.
func newConnWithOptions(c net.Conn, opts options) *Conn {
	cc := &Conn{
		rawConn:  c,
		reader:   bufio.NewReader(c),
		logger:   opts.logger,
		opts:     opts,
		mailbox:  make(chan outboundItem, opts.bufferSize),
		closeReq: make(chan struct{}),
		done:     make(chan struct{}),
	}
	cc.metrics = newConnMetrics(opts.metrics, cc.Addr().String(), func() float64 {
		return float64(cc.Pending())
	})

	return cc
}

// Run starts the connection's read pipeline, dispatch loop and writer,
// and blocks until the connection closes. It returns nil after Close,
// the context error if ctx is canceled, and otherwise the read, decode or
// write error that ended the connection. Run may be called only once.
func (c *Conn) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return ErrConnectionClosed
	}

	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"max_body_length", c.opts.maxBodyLength,
		"max_queue_length", c.opts.maxQueueLength,
		"read_timeout", c.opts.readTimeout,
		"write_timeout", c.opts.writeTimeout)

	group, child := errgroup.WithContext(ctx)
	frames := make(chan []byte)
	results := make(chan error, 1)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child, frames, results)
	})

	group.Go(func() error {
		return c.dispatchLoop(child, frames, results)
	})

	err := group.Wait()
	c.closeTransport()
	c.state.Store(int32(StateClosed))
	c.pending.Store(0)
	c.markDone()

	switch {
	case c.closeRequested():
		err = nil
	case ctx.Err() != nil:
		err = ctx.Err()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close asks the connection to shut down. The request is carried out by
// the dispatch loop, which closes the transport so that any in-flight read
// or write fails. Safe to call multiple times and before Run.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeReq)
	})

	if c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) {
		c.closeTransport()
		c.markDone()
	}
	return nil
}

// Done returns a channel that is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle stage.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsClosed returns true once the connection is closing, closed, or Close
// has been requested.
func (c *Conn) IsClosed() bool {
	return c.closeRequested() || c.State() >= StateClosing
}

// Pending returns the number of messages accepted but not yet written.
// It is zero once the connection is closed.
func (c *Conn) Pending() int {
	if c.State() == StateClosed {
		return 0
	}
	return int(max(c.pending.Load(), 0))
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// Enqueue hands msg to the connection, blocking while the mailbox is full.
// Messages are written in the order they are accepted.
//
// Returns:
//   - nil: message was accepted (not yet sent)
//   - ErrConnectionClosed: connection is closed or closing
//   - ErrQueueFull: the outbound queue bound is reached
//   - ErrBodyTooLarge: body exceeds the max body length
func (c *Conn) Enqueue(msg Message) error {
	return c.EnqueueContext(context.Background(), msg)
}

// EnqueueContext is Enqueue with a context bounding the wait for mailbox
// space. It returns ctx.Err() if the context ends first.
//
// A message accepted while the connection is shutting down may still be
// dropped without an error; Flush reports whether accepted messages went out.
func (c *Conn) EnqueueContext(ctx context.Context, msg Message) error {
	if err := c.admit(msg); err != nil {
		return err
	}

	select {
	case c.mailbox <- outboundItem{msg: msg}:
		return nil
	case <-c.done:
		c.pending.Add(-1)
		return ErrConnectionClosed
	case <-ctx.Done():
		c.pending.Add(-1)
		return ctx.Err()
	}
}

// Flush blocks until every message accepted before the call has been
// written or dropped. It returns ErrConnectionClosed if the connection
// closes first.
func (c *Conn) Flush(ctx context.Context) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	flushed := make(chan struct{})
	select {
	case c.mailbox <- outboundItem{flushed: flushed}:
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue hands msg to the connection without blocking (fire-and-forget).
// It returns ErrBufferFull if the mailbox has no room.
func (c *Conn) TryEnqueue(msg Message) error {
	if err := c.admit(msg); err != nil {
		return err
	}

	select {
	case c.mailbox <- outboundItem{msg: msg}:
		return nil
	default:
		c.pending.Add(-1)
		return ErrBufferFull
	}
}

// admit checks msg against the connection state and limits and reserves a
// slot in the pending count.
func (c *Conn) admit(msg Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	if msg.Length() > c.opts.maxBodyLength {
		return errors.Wrapf(ErrBodyTooLarge, "body is %d bytes, limit %d", msg.Length(), c.opts.maxBodyLength)
	}

	n := c.pending.Add(1)
	if c.opts.maxQueueLength > 0 && n > int64(c.opts.maxQueueLength) {
		c.pending.Add(-1)
		return ErrQueueFull
	}
	return nil
}

// readLoop reads frames one after another and hands each body to the
// message handler before reading the next header.
// Returns on the first read, decode or handler error.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		if c.opts.readTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
		}

		message, err := c.opts.codec.Decode(c.reader)
		if err != nil {
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			return err
		}

		c.metrics.framesReceived.Inc()
		c.metrics.bytesReceived.Add(message.Length())

		if err = c.opts.onMessage(message); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// writeLoop performs the writes handed over by the dispatch loop, one at a
// time, and reports each completion on results.
func (c *Conn) writeLoop(ctx context.Context, frames <-chan []byte, results chan<- error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			err := c.write(frame)
			results <- err
			if err != nil {
				return err
			}
		}
	}
}

// write sends one complete frame to the transport.
func (c *Conn) write(frame []byte) error {
	if c.opts.writeTimeout > 0 {
		_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}

	n, err := c.rawConn.Write(frame)
	c.metrics.bytesSent.Add(n)
	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		return err
	}

	c.metrics.framesSent.Inc()
	return nil
}

// dispatchLoop is the only goroutine that touches the outbound queue. It
// moves accepted messages from the mailbox into the queue, starts a write
// whenever none is in flight and serves close requests. The transport is
// closed when it returns.
func (c *Conn) dispatchLoop(ctx context.Context, frames chan<- []byte, results <-chan error) error {
	var (
		outbound queue[outboundItem]
		inFlight bool
		err      error
	)

	defer func() {
		c.closeTransport()

		dropped := 0
		for ; outbound.len() > 0; outbound.pop() {
			if outbound.front().flushed == nil {
				dropped++
			}
		}
		if dropped > 0 {
			c.logger.Warn("dropping queued messages", "addr", c.Addr(), "count", dropped)
		}
	}()

	for {
		if !inFlight {
			if inFlight, err = c.startWrite(ctx, &outbound, frames); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeReq:
			c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
			c.logger.Debug("close requested", "addr", c.Addr(), "queued", outbound.len())
			return ErrConnectionClosed
		case item := <-c.mailbox:
			outbound.push(item)
		case err = <-results:
			inFlight = false
			if err != nil {
				return err
			}
			outbound.pop()
			c.pending.Add(-1)
		}
	}
}

// startWrite hands the frame of the oldest queued message to the writer.
// Flush markers at the front are released, and messages that cannot be
// framed are reported and skipped. It returns whether a write is now in
// flight.
func (c *Conn) startWrite(ctx context.Context, outbound *queue[outboundItem], frames chan<- []byte) (bool, error) {
	for outbound.len() > 0 {
		item := outbound.front()
		if item.flushed != nil {
			close(item.flushed)
			outbound.pop()
			continue
		}

		frame, err := outboundFrame(c.opts.codec, item.msg, c.opts.maxBodyLength, !c.opts.noFileSend)
		if err != nil {
			c.reportSendError(item.msg, err)
			outbound.pop()
			c.pending.Add(-1)
			continue
		}

		select {
		case frames <- frame:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}

// reportSendError records a message dropped without closing the connection.
// The callback runs on the dispatch loop and must not call Enqueue.
func (c *Conn) reportSendError(msg Message, err error) {
	c.metrics.sendErrors.Inc()
	c.logger.Warn("dropping outbound message", "addr", c.Addr(), "error", err)
	if c.opts.onSendError != nil {
		c.opts.onSendError(msg, err)
	}
}

func (c *Conn) closeRequested() bool {
	select {
	case <-c.closeReq:
		return true
	default:
		return false
	}
}

// closeTransport closes the underlying connection once.
func (c *Conn) closeTransport() {
	c.transportOnce.Do(func() {
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		_ = c.rawConn.Close()
	})
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}
