// Package errext defines the error taxonomy shared by every layer of the runtime.
//
// Callers classify failures with errors.Is against the sentinels below; the typed
// errors carry the details (driver message, offending frame, assertion diagnostics)
// and report themselves as the matching sentinel.
//
//	ErrTransportClosed   pipe or driver process gone          fatal, broadcast once
//	ErrProtocol          malformed frame / missing fields      per message unless framing is lost
//	*RPCError            driver answered with an error         local to the call
//	ErrDisposed          call against a removed entity         local to the call
//	ErrAssertionTimeout  predicate never held before deadline  local to the assertion
//	ErrInvalidArgument   malformed caller input                raised before any RPC
package errext

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTransportClosed  = errors.New("transport closed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrProtocol         = errors.New("protocol error")
	ErrDisposed         = errors.New("target disposed")
	ErrAssertionTimeout = errors.New("assertion timeout")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// RPCError is a failure reported by the driver for one request.
type RPCError struct {
	GUID    string
	Method  string
	Name    string
	Message string
	Stack   string
}

func (e *RPCError) Error() string {
	if e.Name != "" && e.Name != "Error" {
		return fmt.Sprintf("%s.%s: %s: %s", e.GUID, e.Method, e.Name, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.GUID, e.Method, e.Message)
}

// ProtocolError describes a frame that could not be interpreted.
type ProtocolError struct {
	Reason string
	Frame  []byte // offending payload, may be truncated
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError builds a ProtocolError, keeping at most 256 bytes of the frame.
func NewProtocolError(reason string, frame []byte, err error) *ProtocolError {
	const keep = 256
	if len(frame) > keep {
		frame = frame[:keep]
	}
	return &ProtocolError{Reason: reason, Frame: append([]byte(nil), frame...), Err: err}
}

// AssertionError is returned when an expectation is still unmet at its deadline.
type AssertionError struct {
	Assertion string // e.g. "to be visible", "to have text"
	Selector  string
	Expected  string
	Actual    string
	Negated   bool
	Timeout   time.Duration
}

func (e *AssertionError) Error() string {
	not := ""
	if e.Negated {
		not = "NOT "
	}
	msg := fmt.Sprintf("Expected element '%s' %s%s", e.Selector, not, e.Assertion)
	if e.Expected != "" {
		msg += fmt.Sprintf(" '%s'", e.Expected)
	}
	return fmt.Sprintf("%s, but got '%s' after %v", msg, e.Actual, e.Timeout)
}

func (e *AssertionError) Is(target error) bool { return target == ErrAssertionTimeout }

// closedError carries both ErrConnectionClosed and the reason the connection died.
type closedError struct {
	cause error
}

func (e *closedError) Error() string {
	if e.cause == nil {
		return ErrConnectionClosed.Error()
	}
	return fmt.Sprintf("%v: %v", ErrConnectionClosed, e.cause)
}

func (e *closedError) Is(target error) bool { return target == ErrConnectionClosed }

func (e *closedError) Unwrap() error { return e.cause }

// ConnectionClosed wraps cause so that errors.Is matches ErrConnectionClosed and cause.
func ConnectionClosed(cause error) error {
	var ce *closedError
	if errors.As(cause, &ce) {
		return cause
	}
	return &closedError{cause: cause}
}

// InvalidArgument formats an ErrInvalidArgument error.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Disposed formats an ErrDisposed error for guid.
func Disposed(guid, method string) error {
	return fmt.Errorf("%w: %s.%s", ErrDisposed, guid, method)
}
