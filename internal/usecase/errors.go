package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorRateLimited     ErrorCode = "RATE_LIMITED"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

// Error is the coded failure returned by ChatService. Reason is a stable
// snake_case tag for logs; Err is never shown to callers.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Upstream reports whether the failure happened after the completion call
// was attempted.
func (e *Error) Upstream() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case ErrorRateLimited, ErrorUpstream, ErrorUpstreamTimeout:
		return true
	}
	return false
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
