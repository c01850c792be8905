package session

import (
	"fmt"

	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/frame"
)

// Kind classifies an incoming message.
type Kind int

const (
	KindData Kind = iota + 1
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// next decodes one message and classifies it. Routing is left to the
// caller: Call queues data frames, ReadFrame returns them.
func (c *Client) next() (Kind, frame.Message, error) {
	msg, err := frame.ReadMessage(c.stream, c.cfg.MaxMessageSize)
	if err != nil {
		return 0, frame.Message{}, err
	}
	switch {
	case msg.Type == frame.TypeDataFrame:
		return KindData, msg, nil
	case msg.Type.IsReply():
		return KindReply, msg, nil
	default:
		return 0, frame.Message{}, fmt.Errorf("%w: unexpected message type %s", protocol.ErrProtocolViolation, msg.Type)
	}
}
