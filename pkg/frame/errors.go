package frame

import (
	"errors"
	"fmt"
	"io"
)

// ErrConnectionClosed is returned when the peer closes the stream cleanly on
// a frame boundary. It wraps io.EOF.
var ErrConnectionClosed = fmt.Errorf("frame: connection closed: %w", io.EOF)

// ProtocolError reports a stream that cannot be decoded: an implausible
// length prefix, a closure in the middle of a field, or a malformed body.
type ProtocolError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "frame: protocol error in " + e.Field + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func protocolErrorf(field string, err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
