package protocol

import "errors"

// ErrTransport is the parent of every stream-level failure. A connection
// that reports it is unusable.
var ErrTransport = errors.New("protocol: transport error")

var (
	ErrConnectionClosed  = transportError("protocol: connection closed")
	ErrShortWrite        = transportError("protocol: short write")
	ErrClosed            = transportError("protocol: use of failed or closed connection")
	ErrWouldBlock        = errors.New("protocol: stream not writable")
	ErrProtocolViolation = errors.New("protocol: violation")
	ErrTimeout           = errors.New("protocol: timeout")
)

type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

func transportError(msg string) error {
	return &kindError{msg: msg, parent: ErrTransport}
}
