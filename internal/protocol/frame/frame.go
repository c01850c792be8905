package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/stream"
)

const (
	// HeaderLen is the fixed wire header: type u32 + length u32.
	HeaderLen = 8
	// MaxMessageSize is the largest message body the remote side sends.
	MaxMessageSize = 2048
)

// Header is the fixed wire header.
type Header struct {
	Type   Type
	Length uint32
}

// Message is one decoded wire message. It is not retained past the call
// that produced it.
type Message struct {
	Type    Type
	Payload []byte
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("%w: header length %d", protocol.ErrProtocolViolation, len(b))
	}
	return Header{
		Type:   Type(binary.BigEndian.Uint32(b[0:4])),
		Length: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Encode returns header+payload with Length set to len(payload).
func Encode(t Type, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes", protocol.ErrProtocolViolation, len(payload))
	}
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(t))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

func ReadHeader(r io.Reader) (Header, error) {
	var fixed [HeaderLen]byte
	if err := stream.RecvInto(r, fixed[:]); err != nil {
		return Header{}, fmt.Errorf("frame: read header: %w", err)
	}
	return DecodeHeader(fixed[:])
}

// ReadPayload reads a body of declared bytes. A body larger than capacity
// is rejected before anything is read.
func ReadPayload(r io.Reader, declared, capacity uint32) ([]byte, error) {
	if declared > capacity {
		return nil, fmt.Errorf("%w: declared length %d exceeds capacity %d",
			protocol.ErrProtocolViolation, declared, capacity)
	}
	payload := make([]byte, declared)
	if declared == 0 {
		return payload, nil
	}
	if err := stream.RecvInto(r, payload); err != nil {
		return nil, fmt.Errorf("frame: read payload: %w", err)
	}
	return payload, nil
}

func ReadMessage(r io.Reader, capacity uint32) (Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Message{}, err
	}
	payload, err := ReadPayload(r, h.Length, capacity)
	if err != nil {
		// the header is already off the stream
		var re *stream.ReadError
		if errors.As(err, &re) {
			err = &stream.ReadError{Consumed: HeaderLen + re.Consumed, Err: re.Err}
		}
		return Message{}, fmt.Errorf("frame: %s: %w", h.Type, err)
	}
	return Message{Type: h.Type, Payload: payload}, nil
}

// WriteMessage encodes one message and sends it with stream.SendExact.
func WriteMessage(w io.Writer, t Type, payload []byte, wait time.Duration) error {
	buf, err := Encode(t, payload)
	if err != nil {
		return err
	}
	return stream.SendExact(w, buf, wait)
}
