// Package transport opens the byte streams a radio connection runs over.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/airlink/internal/protocol/stream"
)

type Kind string

const (
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
)

const DefaultBaud = 115200

var ErrUnknownKind = errors.New("transport: unknown kind")

// Endpoint names one remote interface.
type Endpoint struct {
	Kind Kind
	// Addr is ip:port for tcp and a device path for serial.
	Addr string
	Baud int
}

func (e Endpoint) String() string {
	if e.Kind == KindSerial {
		return fmt.Sprintf("%s:%s@%d", e.Kind, e.Addr, e.Baud)
	}
	return fmt.Sprintf("%s:%s", e.Kind, e.Addr)
}

// Open connects to ep. timeout bounds the tcp dial; serial opens do not
// block.
func Open(ctx context.Context, ep Endpoint, timeout time.Duration) (stream.Stream, error) {
	switch ep.Kind {
	case KindTCP:
		return DialTCP(ctx, ep.Addr, timeout)
	case KindSerial:
		return OpenSerial(ep.Addr, ep.Baud)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ep.Kind)
	}
}

func DialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}
