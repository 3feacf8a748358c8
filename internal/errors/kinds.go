// Package errors classifies fetch failures and keeps the dismissible notices
// shown by the render layer.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"
)

// Kind is the retry class of a failure.
type Kind int

const (
	// KindFatal is never retried.
	KindFatal Kind = iota
	// KindTransient is retried once after a short delay.
	KindTransient
	// KindRateLimit is retried once after the rate-limit backoff.
	KindRateLimit
	// KindValidation marks malformed input that was normalized away.
	KindValidation
	// KindCanceled marks work abandoned because its context ended.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindCanceled:
		return "canceled"
	default:
		return "fatal"
	}
}

// TransientError wraps a network failure that may succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError reports a 429 response. RetryAfter is zero when the server
// did not send a hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limited"
	}
	return "rate limited: " + e.Message
}

// ValidationError describes a filter value that could not be normalized.
type ValidationError struct {
	Key   string
	Value any
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid value %v for %s: %v", e.Value, e.Key, e.Cause)
	}
	return fmt.Sprintf("invalid value %v for %s", e.Value, e.Key)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// HTTPError is a non-retryable response from the data source.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Classify maps an error onto its retry class.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var rateErr *RateLimitError
	if stderrors.As(err, &rateErr) {
		return KindRateLimit
	}
	var transientErr *TransientError
	if stderrors.As(err, &transientErr) {
		return KindTransient
	}
	var validationErr *ValidationError
	if stderrors.As(err, &validationErr) {
		return KindValidation
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindTransient
	}
	return KindFatal
}

// RetryAfter returns the server hint carried by a rate-limit error.
func RetryAfter(err error) time.Duration {
	var rateErr *RateLimitError
	if stderrors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}
