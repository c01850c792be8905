// Package stream performs exact reads and bounded-wait writes against a
// byte stream.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/danmuck/airlink/internal/protocol"
)

// Stream is the byte transport a connection runs over.
type Stream interface {
	io.ReadWriteCloser
}

// WriteDeadliner is implemented by streams that can bound a write.
type WriteDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// ReadDeadliner is implemented by streams that can bound a read.
type ReadDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReadError reports a failed exact read and how many bytes it consumed
// before failing. Consumed == 0 means the stream is still aligned on a
// message boundary.
type ReadError struct {
	Consumed int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("stream: read failed after %d bytes: %v", e.Consumed, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SendExact waits up to wait for the stream to accept b and writes it in a
// single attempt. A write that times out before any byte is accepted
// reports protocol.ErrWouldBlock and may be retried. A partial write is not
// retried; it reports protocol.ErrShortWrite.
func SendExact(w io.Writer, b []byte, wait time.Duration) error {
	if d, ok := w.(WriteDeadliner); ok && wait > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(wait)); err != nil {
			return fmt.Errorf("%w: set write deadline: %v", protocol.ErrConnectionClosed, err)
		}
		defer func() { _ = d.SetWriteDeadline(time.Time{}) }()
	}

	n, err := w.Write(b)
	switch {
	case err != nil && n == 0 && isTimeout(err):
		return protocol.ErrWouldBlock
	case n < len(b) && n > 0:
		return fmt.Errorf("%w: wrote %d of %d bytes", protocol.ErrShortWrite, n, len(b))
	case err != nil:
		return fmt.Errorf("%w: %v", protocol.ErrConnectionClosed, err)
	case n != len(b):
		return fmt.Errorf("%w: wrote %d of %d bytes", protocol.ErrShortWrite, n, len(b))
	}
	return nil
}

// RecvExact reads exactly n bytes. It never returns a partial buffer.
func RecvExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := RecvInto(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RecvInto fills buf completely from r. A read that returns zero bytes or
// an error fails with protocol.ErrConnectionClosed; an expired read
// deadline fails with protocol.ErrTimeout. Both are wrapped in *ReadError.
func RecvInto(r io.Reader, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		if n > 0 {
			got += n
			if got == len(buf) {
				return nil
			}
		}
		if err != nil {
			if isTimeout(err) {
				return &ReadError{Consumed: got, Err: protocol.ErrTimeout}
			}
			return &ReadError{Consumed: got, Err: fmt.Errorf("%w: %v", protocol.ErrConnectionClosed, err)}
		}
		if n == 0 {
			return &ReadError{Consumed: got, Err: protocol.ErrConnectionClosed}
		}
	}
	return nil
}

// Consumed reports how many bytes a failed read took from the stream, or
// -1 when err does not come from RecvInto.
func Consumed(err error) int {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Consumed
	}
	return -1
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
