// Package capture records frames read from a device into a pcap stream.
// Frames are written as raw 802.11 bytes; they are not decoded.
package capture

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/danmuck/airlink/internal/observability"
	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/frame"
	"github.com/danmuck/airlink/internal/protocol/meta"
	"github.com/danmuck/airlink/internal/protocol/session"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog/log"
)

// FrameReader is the read side of a device.
type FrameReader interface {
	ReadFrame(ctx context.Context, buf []byte) (int, meta.RxInfo, error)
}

type Writer struct {
	pw  *pcapgo.Writer
	now func() time.Time
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(frame.MaxMessageSize, layers.LinkTypeIEEE802_11); err != nil {
		return nil, err
	}
	return &Writer{pw: pw, now: time.Now}, nil
}

func (w *Writer) WriteFrame(data []byte) error {
	return w.pw.WritePacket(gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

type Stats struct {
	Frames   int
	Statuses int
	// Malformed counts frames the device rejected without losing the
	// connection, such as a data frame shorter than its RxInfo.
	Malformed int
}

type Options struct {
	// Limit stops the run after this many frames; <= 0 means no limit.
	Limit int
	// Poll bounds each read so other callers of a shared device get a
	// turn between frames; 0 reads without a bound.
	Poll time.Duration
}

// Run copies frames from r to w until ctx ends, the limit is reached, or r
// fails. Remote status reports and malformed frames are logged and
// skipped; a violation that broke the connection surfaces on the next read
// as a transport error and ends the run.
func Run(ctx context.Context, r FrameReader, w *Writer, opts Options) (Stats, error) {
	var stats Stats
	buf := make([]byte, frame.MaxMessageSize)
	for opts.Limit <= 0 || stats.Frames < opts.Limit {
		n, ri, err := readOne(ctx, r, buf, opts.Poll)
		if err != nil {
			if errors.Is(err, protocol.ErrTimeout) && ctx.Err() == nil && opts.Poll > 0 {
				continue
			}
			if code, ok := session.IsRemoteStatus(err); ok {
				stats.Statuses++
				log.Warn().Int32("code", code).Msg("capture: remote status")
				continue
			}
			if errors.Is(err, protocol.ErrProtocolViolation) && ctx.Err() == nil {
				stats.Malformed++
				log.Warn().Err(err).Msg("capture: malformed frame skipped")
				continue
			}
			if ctx.Err() != nil {
				return stats, nil
			}
			return stats, err
		}
		if err := w.WriteFrame(buf[:n]); err != nil {
			return stats, err
		}
		stats.Frames++
		observability.RecordFrame("captured")
		log.Debug().
			Int("len", n).
			Uint32("channel", ri.Channel).
			Int32("power", ri.Power).
			Msg("capture: frame")
	}
	return stats, nil
}

func readOne(ctx context.Context, r FrameReader, buf []byte, poll time.Duration) (int, meta.RxInfo, error) {
	if poll <= 0 {
		return r.ReadFrame(ctx, buf)
	}
	pollCtx, cancel := context.WithTimeout(ctx, poll)
	defer cancel()
	return r.ReadFrame(pollCtx, buf)
}
