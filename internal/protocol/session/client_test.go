package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/frame"
	"github.com/danmuck/airlink/internal/protocol/meta"
	"github.com/danmuck/airlink/internal/testutil/stubremote"
	"github.com/danmuck/airlink/internal/testutil/testlog"
)

func newPipeClient(t *testing.T, cfg Config, h stubremote.Handler) (*Client, *stubremote.Remote) {
	t.Helper()
	conn, remote := stubremote.Pipe(t, h)
	return NewClient(conn, "pipe", cfg), remote
}

func body(t *testing.T, payload []byte) []byte {
	t.Helper()
	_, b, err := meta.SplitDataFrame(payload)
	if err != nil {
		t.Fatalf("split data frame: %v", err)
	}
	return b
}

func TestCallQueuesInterleavedDataFrames(t *testing.T) {
	testlog.Start(t)
	c, _ := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{
			stubremote.Data([]byte("A")),
			stubremote.Data([]byte("B")),
			stubremote.Result(7),
		}}
	})

	code, err := c.CallResult(context.Background(), frame.TypeGetChannel, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if code != 7 {
		t.Fatalf("result got=%d want=7", code)
	}
	if c.Queue().Len() != 2 {
		t.Fatalf("queued=%d want=2", c.Queue().Len())
	}

	for _, want := range []string{"A", "B"} {
		payload, err := c.ReadFrame(context.Background())
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if got := body(t, payload); string(got) != want {
			t.Fatalf("frame got=%q want=%q", got, want)
		}
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestCallResultSetChannel(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{stubremote.Result(0)}}
	})

	ch := uint32(6)
	code, err := c.CallResult(context.Background(), frame.TypeSetChannel, &ch)
	if err != nil || code != 0 {
		t.Fatalf("set channel code=%d err=%v", code, err)
	}
	cmds := remote.Commands()
	if len(cmds) != 1 || cmds[0].Type != frame.TypeSetChannel || !bytes.Equal(cmds[0].Payload, []byte{0, 0, 0, 6}) {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
}

func TestCallClosedStreamFailsConnection(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{{0, 0, 0}}, Close: true}
	})

	_, err := c.CallResult(context.Background(), frame.TypeGetRate, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Op != OpTransport {
		t.Fatalf("expected transport RPCError, got %v", err)
	}
	if !errors.Is(err, protocol.ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("state=%s want failed", c.State())
	}

	_, err = c.CallResult(context.Background(), frame.TypeGetRate, nil)
	if !errors.Is(err, protocol.ErrClosed) || !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrClosed after failure, got %v", err)
	}
	if _, err := c.ReadFrame(context.Background()); !errors.Is(err, protocol.ErrClosed) {
		t.Fatalf("expected ErrClosed from read, got %v", err)
	}
	if n := len(remote.Commands()); n != 1 {
		t.Fatalf("failed connection still sent: commands=%d", n)
	}
}

func TestCallUnexpectedMessageType(t *testing.T) {
	testlog.Start(t)
	c, _ := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{stubremote.Message(frame.TypeGetRate, nil)}}
	})
	_, err := c.Call(context.Background(), frame.TypeGetRate, nil)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("state=%s want failed", c.State())
	}
}

func TestCallResultSizeMismatch(t *testing.T) {
	testlog.Start(t)
	c, _ := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{stubremote.Message(frame.TypeResult, []byte{0, 1})}}
	})
	_, err := c.CallResult(context.Background(), frame.TypeGetMonitor, nil)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestCallReplyAboveCapacity(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 64
	c, _ := newPipeClient(t, cfg, func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{stubremote.Message(frame.TypeResult, make([]byte, 65))}}
	})
	_, err := c.Call(context.Background(), frame.TypeGetRate, nil)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestCallDropsFramesWhenQueueFull(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.QueueMax = 2
	c, _ := newPipeClient(t, cfg, func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{
			stubremote.Data([]byte("1")),
			stubremote.Data([]byte("2")),
			stubremote.Data([]byte("3")),
			stubremote.Result(0),
		}}
	})
	if _, err := c.CallResult(context.Background(), frame.TypeGetChannel, nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if c.Queue().Len() != 2 || c.Queue().Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", c.Queue().Len(), c.Queue().Dropped())
	}
}

func TestCallTimeoutFailsConnection(t *testing.T) {
	testlog.Start(t)
	c, _ := newPipeClient(t, DefaultConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, frame.TypeGetMAC, nil)
	if !errors.Is(err, protocol.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("state=%s want failed", c.State())
	}
}

func TestCallCancel(t *testing.T) {
	testlog.Start(t)
	c, _ := newPipeClient(t, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Call(ctx, frame.TypeGetMAC, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCallWouldBlockKeepsConnection(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	cfg := DefaultConfig()
	cfg.WriteWait = 20 * time.Millisecond
	c := NewClient(client, "pipe", cfg)
	defer c.Close()

	_, err := c.Call(context.Background(), frame.TypeGetChannel, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Op != OpSend || !errors.Is(err, protocol.ErrWouldBlock) {
		t.Fatalf("expected send ErrWouldBlock, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestReadFrameOutOfFlowStatus(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), nil)
	go func() { _ = remote.Push(stubremote.Result(-5)) }()

	_, err := c.ReadFrame(context.Background())
	code, ok := IsRemoteStatus(err)
	if !ok || code != -5 {
		t.Fatalf("expected remote status -5, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestReadFramePollTimeoutKeepsConnection(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.ReadFrame(ctx)
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}

	ri := meta.RxInfo{Channel: 3, Power: -40}
	go func() { _ = remote.Push(stubremote.DataWith(ri, []byte{0x80, 0x00})) }()
	payload, err := c.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("read after poll timeout: %v", err)
	}
	gotRI, gotBody, _ := meta.SplitDataFrame(payload)
	if gotRI != ri || !bytes.Equal(gotBody, []byte{0x80, 0x00}) {
		t.Fatalf("unexpected frame ri=%+v body=%v", gotRI, gotBody)
	}
}

func TestReadFrameShorterThanRxInfo(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), nil)
	go func() { _ = remote.Push(stubremote.Message(frame.TypeDataFrame, []byte{1, 2, 3})) }()
	_, err := c.ReadFrame(context.Background())
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestWriteFrameSendsTxInfoAndReturnsStatus(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{stubremote.Result(-1)}}
	})

	status, err := c.WriteFrame(context.Background(), &meta.TxInfo{Rate: 2}, []byte{0xd4, 0x00})
	if err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if status != -1 {
		t.Fatalf("status=%d want -1", status)
	}
	cmds := remote.Commands()
	want := append(binary.BigEndian.AppendUint32(nil, 2), 0xd4, 0x00)
	if len(cmds) != 1 || cmds[0].Type != frame.TypeWriteFrame || !bytes.Equal(cmds[0].Payload, want) {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), nil)
	_, err := c.WriteFrame(context.Background(), nil, make([]byte, frame.MaxMessageSize))
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
	if len(remote.Commands()) != 0 || c.State() != StateIdle {
		t.Fatalf("oversized write reached the wire")
	}
}

func TestCloseReleasesQueue(t *testing.T) {
	testlog.Start(t)
	c, _ := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{Replies: [][]byte{stubremote.Data([]byte("x")), stubremote.Result(0)}}
	})
	if _, err := c.CallResult(context.Background(), frame.TypeGetRate, nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.Queue().Slots() != 0 {
		t.Fatalf("slots=%d after close", c.Queue().Slots())
	}
	if _, err := c.ReadFrame(context.Background()); !errors.Is(err, protocol.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// bareStream hides the deadline methods of a net.Conn, like a serial port.
type bareStream struct{ conn net.Conn }

func (b bareStream) Read(p []byte) (int, error)  { return b.conn.Read(p) }
func (b bareStream) Write(p []byte) (int, error) { return b.conn.Write(p) }
func (b bareStream) Close() error                { return b.conn.Close() }

func TestCloseUnblocksPendingCall(t *testing.T) {
	testlog.Start(t)
	c, remote := newPipeClient(t, DefaultConfig(), func(cmd frame.Message) stubremote.Script {
		return stubremote.Script{}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), frame.TypeGetChannel, nil)
		errCh <- err
	}()
	for deadline := time.Now().Add(2 * time.Second); len(remote.Commands()) == 0; {
		if time.Now().After(deadline) {
			t.Fatalf("command never reached the remote")
		}
		time.Sleep(5 * time.Millisecond)
	}

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close blocked behind an outstanding call")
	}

	select {
	case err := <-errCh:
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Op != OpTransport {
			t.Fatalf("expected transport RPCError, got %v", err)
		}
		if !errors.Is(err, protocol.ErrTransport) {
			t.Fatalf("expected transport error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("call still blocked after close")
	}
	if c.State() != StateFailed {
		t.Fatalf("state=%s want failed", c.State())
	}
	if c.Queue().Slots() != 0 {
		t.Fatalf("slots=%d after close", c.Queue().Slots())
	}
}

func TestCloseUnblocksReadFrameWithoutDeadlines(t *testing.T) {
	testlog.Start(t)
	conn, _ := stubremote.Pipe(t, nil)
	c := NewClient(bareStream{conn: conn}, "bare", DefaultConfig())
	if c.Pollable() {
		t.Fatalf("stream without read deadlines reported pollable")
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadFrame(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, protocol.ErrTransport) {
			t.Fatalf("expected transport error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read frame still blocked after close")
	}
}
