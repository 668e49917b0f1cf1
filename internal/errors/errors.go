package errors

import "fmt"

// ErrorCode classifies a Retrace error.
type ErrorCode string

const (
	// ErrTransient covers failures that are retried or skipped: a single
	// frame acquisition failure, an encoder timeout, one failed write.
	ErrTransient ErrorCode = "TRANSIENT"

	// ErrCaptureExhausted is raised when consecutive frame acquisition
	// failures exceed the retry budget and the scheduler stops.
	ErrCaptureExhausted ErrorCode = "CAPTURE_EXHAUSTED"

	// ErrSkipped marks a capture that was intentionally dropped: no usable
	// text, a consecutive duplicate, or insufficient content.
	ErrSkipped ErrorCode = "SKIPPED"

	// ErrEnvironment covers configuration/environment problems: missing
	// encoder binary, unwritable archive directory.
	ErrEnvironment ErrorCode = "ENVIRONMENT"

	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrInternal       ErrorCode = "INTERNAL"
)

// RetraceError is a structured error with a code and optional details.
type RetraceError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *RetraceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *RetraceError) Unwrap() error {
	return e.cause
}

// NewTransient creates a retryable/skippable failure for one capture or chunk.
func NewTransient(op string, cause error) *RetraceError {
	return &RetraceError{
		Code:    ErrTransient,
		Message: fmt.Sprintf("%s failed", op),
		Details: map[string]any{"op": op},
		cause:   cause,
	}
}

// NewCaptureExhausted creates the pipeline-stopping error raised after the
// scheduler's retry budget is spent.
func NewCaptureExhausted(attempts int, cause error) *RetraceError {
	return &RetraceError{
		Code:    ErrCaptureExhausted,
		Message: fmt.Sprintf("frame acquisition failed %d consecutive times", attempts),
		Details: map[string]any{"attempts": attempts},
		cause:   cause,
	}
}

// NewSkipped marks an intentionally dropped capture. Reason is one of
// "empty", "duplicate", "thin".
func NewSkipped(reason string) *RetraceError {
	return &RetraceError{
		Code:    ErrSkipped,
		Message: fmt.Sprintf("capture skipped: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewEnvironment creates an error for a missing binary, unwritable directory,
// or similar environmental problem.
func NewEnvironment(msg string, cause error) *RetraceError {
	return &RetraceError{
		Code:    ErrEnvironment,
		Message: msg,
		cause:   cause,
	}
}

// NewInvalidRequest creates an error for invalid operation parameters.
func NewInvalidRequest(msg string) *RetraceError {
	return &RetraceError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewNotFound creates an error for a missing record.
func NewNotFound(what string) *RetraceError {
	return &RetraceError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", what),
		Details: map[string]any{"identifier": what},
	}
}

// NewInternal wraps an unexpected internal error.
func NewInternal(err error) *RetraceError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &RetraceError{
		Code:    ErrInternal,
		Message: msg,
		cause:   err,
	}
}

// Is checks whether err is a RetraceError with the given code.
func Is(err error, code ErrorCode) bool {
	if rErr, ok := err.(*RetraceError); ok {
		return rErr.Code == code
	}
	return false
}
