// Package stubremote is a scripted remote radio endpoint for tests. It
// reads commands and answers each one with whatever its handler scripts.
package stubremote

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/airlink/internal/protocol/frame"
	"github.com/danmuck/airlink/internal/protocol/meta"
)

// Script is the remote's answer to one command.
type Script struct {
	Replies [][]byte
	// Close drops the connection after Replies are written.
	Close bool
}

type Handler func(cmd frame.Message) Script

type Remote struct {
	conn    net.Conn
	handler Handler

	mu       sync.Mutex
	writeMu  sync.Mutex
	commands []frame.Message
	done     chan struct{}
}

// Pipe returns the client end of an in-memory connection served by h.
func Pipe(t *testing.T, h Handler) (net.Conn, *Remote) {
	t.Helper()
	client, server := net.Pipe()
	r := serve(server, h)
	t.Cleanup(func() {
		_ = client.Close()
		r.Close()
	})
	return client, r
}

// Listen serves the first TCP connection accepted on a loopback port and
// returns its address.
func Listen(t *testing.T, h Handler) (string, <-chan *Remote) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("stubremote listen: %v", err)
	}
	remotes := make(chan *Remote, 1)
	go func() {
		conn, err := ln.Accept()
		_ = ln.Close()
		if err != nil {
			close(remotes)
			return
		}
		remotes <- serve(conn, h)
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String(), remotes
}

func serve(conn net.Conn, h Handler) *Remote {
	if h == nil {
		h = func(frame.Message) Script { return Script{} }
	}
	r := &Remote{conn: conn, handler: h, done: make(chan struct{})}
	go r.loop()
	return r
}

func (r *Remote) loop() {
	defer close(r.done)
	for {
		cmd, err := frame.ReadMessage(r.conn, frame.MaxMessageSize)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.commands = append(r.commands, cmd)
		r.mu.Unlock()

		script := r.handler(cmd)
		if err := r.Push(script.Replies...); err != nil {
			return
		}
		if script.Close {
			_ = r.conn.Close()
			return
		}
	}
}

// Push writes unsolicited messages.
func (r *Remote) Push(msgs ...[]byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	for _, m := range msgs {
		if _, err := r.conn.Write(m); err != nil {
			return err
		}
	}
	return nil
}

// Commands returns the commands received so far.
func (r *Remote) Commands() []frame.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame.Message, len(r.commands))
	copy(out, r.commands)
	return out
}

func (r *Remote) Close() {
	_ = r.conn.Close()
	<-r.done
}

func Message(t frame.Type, payload []byte) []byte {
	b, _ := frame.Encode(t, payload)
	return b
}

func Result(code int32) []byte {
	return Message(frame.TypeResult, binary.BigEndian.AppendUint32(nil, uint32(code)))
}

// Data wraps body in a DATA_FRAME with a zero RxInfo.
func Data(body []byte) []byte {
	return DataWith(meta.RxInfo{}, body)
}

func DataWith(ri meta.RxInfo, body []byte) []byte {
	hdr, _ := ri.MarshalBinary()
	return Message(frame.TypeDataFrame, append(hdr, body...))
}

func MAC(addr []byte) []byte {
	return Message(frame.TypeMACReply, addr)
}
