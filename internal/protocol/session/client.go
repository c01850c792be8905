package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/airlink/internal/observability"
	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/frame"
	"github.com/danmuck/airlink/internal/protocol/meta"
	"github.com/danmuck/airlink/internal/protocol/stream"
	"github.com/rs/zerolog/log"
)

// State is the rpc state of a Client.
type State int32

const (
	StateIdle State = iota
	StateAwaitingReply
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client runs the rpc and data-frame paths over one stream. Its methods
// are safe for concurrent use but execute one at a time.
type Client struct {
	mu     sync.Mutex
	stream stream.Stream
	cfg    Config
	queue  *FrameQueue
	state  atomic.Int32
	label  string
	closed atomic.Bool
}

func NewClient(s stream.Stream, label string, cfg Config) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		stream: s,
		cfg:    cfg,
		queue:  NewFrameQueue(cfg.QueueMax),
		label:  label,
	}
}

func (c *Client) State() State { return State(c.state.Load()) }

// Queue exposes the out-of-band queue for inspection.
func (c *Client) Queue() *FrameQueue { return c.queue }

// Call sends cmd with req and waits for its reply. Data frames that arrive
// first are queued for ReadFrame. The wait is bounded only by ctx and by
// the stream failing.
func (c *Client) Call(ctx context.Context, cmd frame.Type, req []byte) (frame.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := time.Now()
	msg, err := c.call(ctx, cmd, req)
	observability.RecordRPC(cmd.String(), outcome(err), time.Since(start))
	return msg, err
}

func (c *Client) call(ctx context.Context, cmd frame.Type, req []byte) (frame.Message, error) {
	if err := c.usable(); err != nil {
		return frame.Message{}, err
	}

	if err := frame.WriteMessage(c.stream, cmd, req, c.writeWait(ctx)); err != nil {
		if !errors.Is(err, protocol.ErrWouldBlock) {
			c.fail(err)
		}
		return frame.Message{}, &RPCError{Op: OpSend, Cmd: cmd, Err: err}
	}
	c.state.CompareAndSwap(int32(StateIdle), int32(StateAwaitingReply))

	stop := c.armRead(ctx)
	defer stop()
	for {
		kind, msg, err := c.next()
		if err != nil {
			err = contextError(ctx, err)
			c.fail(err)
			return frame.Message{}, &RPCError{Op: OpTransport, Cmd: cmd, Err: err}
		}
		if kind == KindData {
			c.enqueue(msg.Payload)
			continue
		}
		c.state.CompareAndSwap(int32(StateAwaitingReply), int32(StateIdle))
		return msg, nil
	}
}

// CallResult sends cmd with an optional big-endian argument and expects a
// RESULT carrying exactly four bytes.
func (c *Client) CallResult(ctx context.Context, cmd frame.Type, arg *uint32) (int32, error) {
	var req []byte
	if arg != nil {
		req = binary.BigEndian.AppendUint32(nil, *arg)
	}
	return c.callResult(ctx, cmd, req)
}

func (c *Client) callResult(ctx context.Context, cmd frame.Type, req []byte) (int32, error) {
	msg, err := c.Call(ctx, cmd, req)
	if err != nil {
		return 0, err
	}
	return resultCode(cmd, msg)
}

func resultCode(cmd frame.Type, msg frame.Message) (int32, error) {
	if msg.Type != frame.TypeResult {
		return 0, fmt.Errorf("%w: %s answered with %s", protocol.ErrProtocolViolation, cmd, msg.Type)
	}
	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("%w: %s result has %d bytes", protocol.ErrProtocolViolation, cmd, len(msg.Payload))
	}
	return int32(binary.BigEndian.Uint32(msg.Payload)), nil
}

// ReadFrame returns the next data frame payload, RxInfo included. Queued
// frames are drained before the stream is read. A RESULT seen here is an
// out-of-flow status and comes back as *RemoteStatusError.
func (c *Client) ReadFrame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usable(); err != nil {
		return nil, err
	}

	if payload, ok := c.queue.Dequeue(); ok {
		observability.RecordFrame("dequeued")
		return checkDataFrame(payload)
	}

	stop := c.armRead(ctx)
	defer stop()
	kind, msg, err := c.next()
	if err != nil {
		err = contextError(ctx, err)
		if errors.Is(err, protocol.ErrTimeout) && stream.Consumed(err) == 0 {
			return nil, &RPCError{Op: OpTransport, Cmd: frame.TypeDataFrame, Err: err}
		}
		c.fail(err)
		return nil, &RPCError{Op: OpTransport, Cmd: frame.TypeDataFrame, Err: err}
	}
	if kind == KindReply {
		code, err := resultCode(frame.TypeDataFrame, msg)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("target", c.label).Int32("code", code).Msg("session: out-of-flow status")
		return nil, &RemoteStatusError{Code: code}
	}
	observability.RecordFrame("read")
	return checkDataFrame(msg.Payload)
}

func checkDataFrame(payload []byte) ([]byte, error) {
	if len(payload) < meta.RxInfoLen {
		return nil, fmt.Errorf("%w: data frame of %d bytes is shorter than rx info", protocol.ErrProtocolViolation, len(payload))
	}
	return payload, nil
}

// WriteFrame transmits data prefixed by ti (zeroed when nil) and returns
// the remote status. Negative status is the remote's own failure code.
func (c *Client) WriteFrame(ctx context.Context, ti *meta.TxInfo, data []byte) (int32, error) {
	payload := meta.JoinWriteFrame(ti, data)
	if uint32(len(payload)) > c.cfg.MaxMessageSize {
		return 0, fmt.Errorf("%w: write of %d bytes exceeds %d", protocol.ErrProtocolViolation, len(payload), c.cfg.MaxMessageSize)
	}
	return c.callResult(ctx, frame.TypeWriteFrame, payload)
}

// Close releases the stream and the frame pool. It does not wait for an
// in-flight operation: closing the stream makes a blocked read fail, and
// the pool is released once that operation returns. Later operations fail
// with protocol.ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.state.Store(int32(StateFailed))
	err := c.stream.Close()

	c.mu.Lock()
	c.queue.Reset()
	c.mu.Unlock()
	return err
}

// Pollable reports whether ctx deadlines can bound reads on this stream.
// Without them a ReadFrame waits until a message arrives or Close is
// called.
func (c *Client) Pollable() bool {
	_, ok := c.stream.(stream.ReadDeadliner)
	return ok
}

func (c *Client) usable() error {
	if c.closed.Load() || c.State() == StateFailed {
		return protocol.ErrClosed
	}
	return nil
}

func (c *Client) fail(err error) {
	if c.state.Swap(int32(StateFailed)) == int32(StateFailed) {
		return
	}
	log.Warn().Str("target", c.label).Err(err).Msg("session: connection failed")
}

func (c *Client) enqueue(payload []byte) {
	if c.queue.Enqueue(payload) {
		observability.RecordFrame("queued")
		return
	}
	observability.RecordFrame("dropped")
	log.Debug().
		Str("target", c.label).
		Int("len", len(payload)).
		Uint64("dropped", c.queue.Dropped()).
		Msg("session: out-of-band queue full, frame dropped")
}

func (c *Client) writeWait(ctx context.Context) time.Duration {
	wait := c.cfg.WriteWait
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = max(until, time.Microsecond)
		}
	}
	return wait
}

// armRead bounds stream reads by ctx. Cancellation forces the pending read
// to return by moving the deadline into the past. Streams without read
// deadlines block until they deliver or fail.
func (c *Client) armRead(ctx context.Context) func() {
	rd, ok := c.stream.(stream.ReadDeadliner)
	if !ok {
		return func() {}
	}
	deadline, _ := ctx.Deadline()
	_ = rd.SetReadDeadline(deadline)
	if ctx.Done() == nil {
		return func() { _ = rd.SetReadDeadline(time.Time{}) }
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = rd.SetReadDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		_ = rd.SetReadDeadline(time.Time{})
	}
}

// contextError ties a read timeout to the context that caused it.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, protocol.ErrTimeout) {
		return fmt.Errorf("%w: %w", err, ctxErr)
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrWouldBlock):
		return "would_block"
	case errors.Is(err, protocol.ErrTimeout):
		return "timeout"
	case errors.Is(err, protocol.ErrProtocolViolation):
		return "violation"
	default:
		return "transport_error"
	}
}
