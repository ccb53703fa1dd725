package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrBusy              = errors.New("operation already in progress")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrStreamInterrupted = errors.New("stream interrupted")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// RateLimitError carries the denied endpoint class and the delay after
// which the caller may retry. It unwraps to ErrRateLimited so IsKind
// keeps working.
type RateLimitError struct {
	Class      EndpointClass
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Class, e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 || secs <= 0 {
		secs++
	}
	return secs
}

// ErrorKind maps an error to its machine-readable wire kind.
func ErrorKind(err error) string {
	switch {
	case IsKind(err, ErrRateLimited):
		return "rate_limited"
	case IsKind(err, ErrBusy):
		return "busy"
	case IsKind(err, ErrStreamInterrupted):
		return "stream_interrupted"
	case IsKind(err, ErrUpstreamFailure):
		return "upstream_failure"
	case IsKind(err, ErrSessionNotFound):
		return "session_not_found"
	case IsKind(err, ErrSessionExpired):
		return "session_expired"
	case IsKind(err, ErrForbidden):
		return "forbidden"
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
