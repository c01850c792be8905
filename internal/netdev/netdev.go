// Package netdev exposes a remote radio interface as a Device.
package netdev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/frame"
	"github.com/danmuck/airlink/internal/protocol/meta"
	"github.com/danmuck/airlink/internal/protocol/session"
	"github.com/danmuck/airlink/internal/protocol/stream"
	"github.com/danmuck/airlink/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnectFailed = errors.New("netdev: failed to connect")
	// ErrValueRange rejects a setting that does not fit the wire's int32.
	ErrValueRange = errors.New("netdev: value out of range")
)

// Device is a radio interface driver. NetDevice is the network-backed
// implementation.
type Device interface {
	// ReadFrame copies the next received frame into buf, truncating frames
	// longer than buf, and returns the copied length.
	ReadFrame(ctx context.Context, buf []byte) (int, meta.RxInfo, error)
	// WriteFrame transmits data; ti may be nil.
	WriteFrame(ctx context.Context, data []byte, ti *meta.TxInfo) (int32, error)
	Channel(ctx context.Context) (int, error)
	SetChannel(ctx context.Context, channel int) error
	Rate(ctx context.Context) (int, error)
	SetRate(ctx context.Context, rate int) error
	MACAddress(ctx context.Context) (net.HardwareAddr, error)
	MonitorState(ctx context.Context) (int, error)
	Descriptor() string
	Close() error
}

type Options struct {
	Session session.Config
	// MaxConnectAttempts <= 0 means one attempt.
	MaxConnectAttempts int
}

func DefaultOptions() Options {
	return Options{Session: session.DefaultConfig(), MaxConnectAttempts: 1}
}

type NetDevice struct {
	endpoint transport.Endpoint
	client   *session.Client
}

var _ Device = (*NetDevice)(nil)

// Open parses target, connects and returns a ready device.
func Open(ctx context.Context, target string, opts Options) (*NetDevice, error) {
	ep, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	opts.Session = opts.Session.WithDefaults()

	s, err := connect(ctx, ep, opts)
	if err != nil {
		log.Error().Str("target", ep.String()).Err(err).Msg("netdev: failed to connect")
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, ep, err)
	}
	if err := handshake(s); err != nil {
		_ = s.Close()
		log.Error().Str("target", ep.String()).Err(err).Msg("netdev: handshake failed")
		return nil, fmt.Errorf("%w: %s: handshake: %w", ErrConnectFailed, ep, err)
	}
	log.Info().Str("target", ep.String()).Msg("netdev: connection successful")
	return newNetDevice(ep, s, opts.Session), nil
}

// NewFromStream wraps an already connected stream.
func NewFromStream(ep transport.Endpoint, s stream.Stream, cfg session.Config) *NetDevice {
	return newNetDevice(ep, s, cfg)
}

func newNetDevice(ep transport.Endpoint, s stream.Stream, cfg session.Config) *NetDevice {
	return &NetDevice{
		endpoint: ep,
		client:   session.NewClient(s, ep.String(), cfg),
	}
}

func connect(ctx context.Context, ep transport.Endpoint, opts Options) (stream.Stream, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempts := max(opts.MaxConnectAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Info().Str("target", ep.String()).Int("attempt", attempt).Msg("netdev: connecting")
		s, err := transport.Open(ctx, ep, opts.Session.ConnectTimeout)
		if err == nil {
			return s, nil
		}
		lastErr = err
		log.Warn().Str("target", ep.String()).Int("attempt", attempt).Err(err).Msg("netdev: dial failed")
		if attempt == attempts {
			break
		}
		if err := session.WaitBackoff(ctx, opts.Session.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// handshake is a placeholder; the remote side does not authenticate.
func handshake(stream.Stream) error {
	return nil
}

func (d *NetDevice) Client() *session.Client { return d.client }

func (d *NetDevice) Descriptor() string { return d.endpoint.String() }

// Pollable reports whether ctx deadlines bound reads. Serial streams are
// not pollable; only Close interrupts a read on them.
func (d *NetDevice) Pollable() bool { return d.client.Pollable() }

func (d *NetDevice) Close() error {
	log.Debug().Str("target", d.endpoint.String()).Msg("netdev: closing")
	return d.client.Close()
}

func (d *NetDevice) ReadFrame(ctx context.Context, buf []byte) (int, meta.RxInfo, error) {
	payload, err := d.client.ReadFrame(ctx)
	if err != nil {
		return 0, meta.RxInfo{}, err
	}
	ri, body, err := meta.SplitDataFrame(payload)
	if err != nil {
		return 0, meta.RxInfo{}, err
	}
	return copy(buf, body), ri, nil
}

func (d *NetDevice) WriteFrame(ctx context.Context, data []byte, ti *meta.TxInfo) (int32, error) {
	status, err := d.client.WriteFrame(ctx, ti, data)
	if err != nil {
		return 0, err
	}
	if status < 0 {
		return status, &session.RemoteStatusError{Code: status}
	}
	return status, nil
}

func (d *NetDevice) Channel(ctx context.Context) (int, error) {
	return d.get(ctx, frame.TypeGetChannel)
}

func (d *NetDevice) SetChannel(ctx context.Context, channel int) error {
	return d.set(ctx, frame.TypeSetChannel, channel)
}

func (d *NetDevice) Rate(ctx context.Context) (int, error) {
	return d.get(ctx, frame.TypeGetRate)
}

func (d *NetDevice) SetRate(ctx context.Context, rate int) error {
	return d.set(ctx, frame.TypeSetRate, rate)
}

func (d *NetDevice) MonitorState(ctx context.Context) (int, error) {
	return d.get(ctx, frame.TypeGetMonitor)
}

// MACAddress asks for the hardware address. The remote may answer with a
// RESULT status instead, which is returned as *session.RemoteStatusError.
func (d *NetDevice) MACAddress(ctx context.Context) (net.HardwareAddr, error) {
	msg, err := d.client.Call(ctx, frame.TypeGetMAC, nil)
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case frame.TypeMACReply:
		if len(msg.Payload) != 6 {
			return nil, fmt.Errorf("%w: mac reply has %d bytes", protocol.ErrProtocolViolation, len(msg.Payload))
		}
		return net.HardwareAddr(msg.Payload), nil
	case frame.TypeResult:
		if len(msg.Payload) != 4 {
			return nil, fmt.Errorf("%w: result has %d bytes", protocol.ErrProtocolViolation, len(msg.Payload))
		}
		return nil, &session.RemoteStatusError{Code: int32(binary.BigEndian.Uint32(msg.Payload))}
	default:
		return nil, fmt.Errorf("%w: get_mac answered with %s", protocol.ErrProtocolViolation, msg.Type)
	}
}

func (d *NetDevice) get(ctx context.Context, cmd frame.Type) (int, error) {
	v, err := d.client.CallResult(ctx, cmd, nil)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return int(v), &session.RemoteStatusError{Code: v}
	}
	return int(v), nil
}

func (d *NetDevice) set(ctx context.Context, cmd frame.Type, value int) error {
	if value < math.MinInt32 || value > math.MaxInt32 {
		return fmt.Errorf("%w: %s %d", ErrValueRange, cmd, value)
	}
	arg := uint32(int32(value))
	v, err := d.client.CallResult(ctx, cmd, &arg)
	if err != nil {
		return err
	}
	if v < 0 {
		return &session.RemoteStatusError{Code: v}
	}
	return nil
}
