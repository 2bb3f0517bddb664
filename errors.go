package udsock

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Error is a structured udsock error carrying the operation and minor
// it occurred on, alongside the POSIX-ish errno the core or ctrl
// collaborator raised.
type Error struct {
	Op    string    // Operation that failed (e.g. "read", "connect", "bind")
	Minor int       // Socket table slot (-1 if not applicable)
	Code  ErrorCode // High-level error category
	Errno error     // Underlying errno (golang.org/x/sys/unix sentinel)
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Minor >= 0 {
		parts = append(parts, fmt.Sprintf("minor=%d", e.Minor))
	}
	if e.Errno != nil {
		parts = append(parts, fmt.Sprintf("errno=%v", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("udsock: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("udsock: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	if e.Errno != nil {
		return errors.Is(e.Errno, target)
	}
	return false
}

// ErrorCode categorizes an Error without pinning a caller to a
// specific errno value.
type ErrorCode string

const (
	ErrCodeBrokenPipe     ErrorCode = "broken pipe"
	ErrCodeConnReset      ErrorCode = "connection reset"
	ErrCodeNotConnected   ErrorCode = "not connected"
	ErrCodeRefused        ErrorCode = "connection refused"
	ErrCodeMsgTooLarge    ErrorCode = "message too large"
	ErrCodeWouldBlock     ErrorCode = "operation would block"
	ErrCodeInProgress     ErrorCode = "operation in progress"
	ErrCodeInterrupted    ErrorCode = "interrupted"
	ErrCodeInvalid        ErrorCode = "invalid argument"
	ErrCodeNoSuchSlot     ErrorCode = "no such slot"
	ErrCodeTableFull      ErrorCode = "table full"
	ErrCodeIOError        ErrorCode = "I/O error"
)

// NewError creates a structured error with no underlying errno.
func NewError(op string, minor int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Minor: minor, Code: code, Msg: msg}
}

// WrapError wraps err with operation/minor context, mapping it to an
// ErrorCode when it resolves to one of the errno sentinels this
// package cares about. A nil err yields a nil *Error, so callers can
// write `return WrapError(op, minor, err)` unconditionally.
func WrapError(op string, minor int, err error) *Error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(*Error); ok {
		return &Error{Op: op, Minor: minor, Code: ue.Code, Errno: ue.Errno, Msg: ue.Msg, Inner: ue.Inner}
	}
	code, msg := mapErrnoToCode(err)
	return &Error{Op: op, Minor: minor, Code: code, Errno: err, Msg: msg, Inner: err}
}

func mapErrnoToCode(err error) (ErrorCode, string) {
	switch {
	case errors.Is(err, unix.EPIPE):
		return ErrCodeBrokenPipe, "broken pipe"
	case errors.Is(err, unix.ECONNRESET):
		return ErrCodeConnReset, "connection reset by peer"
	case errors.Is(err, unix.ENOTCONN):
		return ErrCodeNotConnected, "socket is not connected"
	case errors.Is(err, unix.ECONNREFUSED):
		return ErrCodeRefused, "connection refused"
	case errors.Is(err, unix.EMSGSIZE):
		return ErrCodeMsgTooLarge, "message too large for datagram/seqpacket"
	case errors.Is(err, unix.EAGAIN):
		return ErrCodeWouldBlock, "operation would block"
	case errors.Is(err, unix.EINPROGRESS):
		return ErrCodeInProgress, "operation in progress"
	case errors.Is(err, unix.EINTR):
		return ErrCodeInterrupted, "interrupted by cancel"
	case errors.Is(err, unix.EINVAL):
		return ErrCodeInvalid, "invalid argument"
	case errors.Is(err, unix.ENXIO), errors.Is(err, unix.EBADF):
		return ErrCodeNoSuchSlot, "no such socket slot"
	case errors.Is(err, unix.ENFILE):
		return ErrCodeTableFull, "socket table full"
	default:
		return ErrCodeIOError, err.Error()
	}
}

// IsCode reports whether err resolves to a structured Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
