package clock

import "fmt"

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type ErrCode),
// an error message and optionally the error that caused it.
type Error struct {
	Code  ErrCode // The return code
	Msg   string  // The error message
	Cause error   // Optional underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ClockError (code %s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("ClockError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error (if any)
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same code.
// This allows errors.Is(err, clock.ErrNoHandler) regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new ClockError with the given code and message.
func NewError(code ErrCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new ClockError with the given code and message that wraps cause.
func WrapError(code ErrCode, msg string, cause error) *Error {
	return &Error{
		Code:  code,
		Msg:   msg,
		Cause: cause,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type ErrCode uint64

const (
	ErrCNone            ErrCode = iota // 0: no error
	ErrCNoHandler                      // 1: build error, no handler was set
	ErrCNoTimeout                      // 2: build error, no timeout duration was set
	ErrCNoRefresh                      // 3: build error, no refresh interval was set
	ErrCInvalidOption                  // 4: build error, an option has an invalid value
	ErrCDispatchFailed                 // 5: an event could not be handed to the dispatcher
	ErrCShutdownTimeout                // 6: shutdown did not complete before the deadline
)

func (c ErrCode) String() string {
	switch c {
	case ErrCNone:
		return "None"
	case ErrCNoHandler:
		return "NoHandler"
	case ErrCNoTimeout:
		return "NoTimeout"
	case ErrCNoRefresh:
		return "NoRefresh"
	case ErrCInvalidOption:
		return "InvalidOption"
	case ErrCDispatchFailed:
		return "DispatchFailed"
	case ErrCShutdownTimeout:
		return "ShutdownTimeout"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrNoHandler       = NewError(ErrCNoHandler, "no handler set")
	ErrNoTimeout       = NewError(ErrCNoTimeout, "no timeout duration set")
	ErrNoRefresh       = NewError(ErrCNoRefresh, "no refresh interval set")
	ErrInvalidOption   = NewError(ErrCInvalidOption, "invalid option")
	ErrDispatchFailed  = NewError(ErrCDispatchFailed, "dispatch failed")
	ErrShutdownTimeout = NewError(ErrCShutdownTimeout, "shutdown did not complete")
)
