package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/airlink/internal/protocol/frame"
)

// Op names the rpc step that failed.
type Op string

const (
	OpSend      Op = "send"
	OpTransport Op = "transport"
)

// RPCError wraps a failure during Call, ReadFrame or WriteFrame.
type RPCError struct {
	Op  Op
	Cmd frame.Type
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.Cmd, e.Op, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// RemoteStatusError is a negative or out-of-flow status reported by the
// remote side in a RESULT message. The connection stays usable.
type RemoteStatusError struct {
	Code int32
}

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("session: remote status %d", e.Code)
}

// IsRemoteStatus reports whether err carries a remote status code.
func IsRemoteStatus(err error) (int32, bool) {
	var rs *RemoteStatusError
	if errors.As(err, &rs) {
		return rs.Code, true
	}
	return 0, false
}
