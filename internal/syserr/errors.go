package syserr

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeInvalidArgument indicates oversize strings, empty input or out-of-range ids
	ErrTypeInvalidArgument ErrorType = iota
	// ErrTypeInvalidState indicates an operation attempted before start or after stop
	ErrTypeInvalidState
	// ErrTypeNotFound indicates a lookup of an absent record
	ErrTypeNotFound
	// ErrTypeNoMemory indicates exhaustion of a bounded resource (slots, buffers)
	ErrTypeNoMemory
	// ErrTypeTimeout indicates a bounded wait was exceeded
	ErrTypeTimeout
	// ErrTypeIO indicates a failure of the key/value store, UART driver or a socket
	ErrTypeIO
	// ErrTypeScanInProgress indicates a scan request that refused to share the running scan
	ErrTypeScanInProgress
	// ErrTypeInvalidSize indicates a partial wire write
	ErrTypeInvalidSize
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeInvalidArgument:
		return "Invalid Argument"
	case ErrTypeInvalidState:
		return "Invalid State"
	case ErrTypeNotFound:
		return "Not Found"
	case ErrTypeNoMemory:
		return "No Memory"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeIO:
		return "IO Error"
	case ErrTypeScanInProgress:
		return "Scan In Progress"
	case ErrTypeInvalidSize:
		return "Invalid Size"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error type returned by the bridge subsystems.
type Error struct {
	Type    ErrorType // Category of error
	Op      string    // Operation that failed (e.g. "wifi.connect")
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Type.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given type.
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap creates an error of the given type around an underlying error.
func Wrap(t ErrorType, op, message string, err error) *Error {
	return &Error{Type: t, Op: op, Message: message, Err: err}
}

// InvalidArgument creates an ErrTypeInvalidArgument error
func InvalidArgument(op, format string, args ...interface{}) *Error {
	return New(ErrTypeInvalidArgument, op, fmt.Sprintf(format, args...))
}

// InvalidState creates an ErrTypeInvalidState error
func InvalidState(op, format string, args ...interface{}) *Error {
	return New(ErrTypeInvalidState, op, fmt.Sprintf(format, args...))
}

// NotFound creates an ErrTypeNotFound error
func NotFound(op, format string, args ...interface{}) *Error {
	return New(ErrTypeNotFound, op, fmt.Sprintf(format, args...))
}

// NoMemory creates an ErrTypeNoMemory error
func NoMemory(op, format string, args ...interface{}) *Error {
	return New(ErrTypeNoMemory, op, fmt.Sprintf(format, args...))
}

// Timeout creates an ErrTypeTimeout error
func Timeout(op, format string, args ...interface{}) *Error {
	return New(ErrTypeTimeout, op, fmt.Sprintf(format, args...))
}

// IO wraps a store, driver or socket failure
func IO(op, message string, err error) *Error {
	return Wrap(ErrTypeIO, op, message, err)
}

// TypeOf returns the ErrorType carried by err. The second result is false when
// err does not contain an *Error.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// Is reports whether err carries the given ErrorType.
func Is(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool { return Is(err, ErrTypeInvalidArgument) }

// IsInvalidState checks if an error is an invalid state error
func IsInvalidState(err error) bool { return Is(err, ErrTypeInvalidState) }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return Is(err, ErrTypeNotFound) }

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool { return Is(err, ErrTypeTimeout) }

// IsIO checks if an error is an IO error
func IsIO(err error) bool { return Is(err, ErrTypeIO) }

// ShortMessage returns a compact name for an error, suitable for the console
// menu and the display ("TIMEOUT", "NOT_FOUND", ...).
func ShortMessage(err error) string {
	if err == nil {
		return "OK"
	}
	t, ok := TypeOf(err)
	if !ok {
		return "FAIL"
	}
	switch t {
	case ErrTypeInvalidArgument:
		return "INVALID_ARG"
	case ErrTypeInvalidState:
		return "INVALID_STATE"
	case ErrTypeNotFound:
		return "NOT_FOUND"
	case ErrTypeNoMemory:
		return "NO_MEM"
	case ErrTypeTimeout:
		return "TIMEOUT"
	case ErrTypeScanInProgress:
		return "SCAN_IN_PROGRESS"
	case ErrTypeInvalidSize:
		return "INVALID_SIZE"
	case ErrTypeIO:
		return "IO_ERROR"
	default:
		return "FAIL"
	}
}
