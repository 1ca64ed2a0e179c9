// Package resilience classifies provider errors and retries the transient
// ones. The pipeline decides skip-vs-abort from the outcome kind instead of
// catching layered error hierarchies.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (429, 5xx, network
// timeout). Exhausting retries degrades to a recorded failure, never a
// run abort.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransient wraps an error as transient with an optional HTTP status code.
func NewTransient(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError wraps a provider error that must not be retried. When
// Misconfig is set the error indicates a bad key or invalid request and the
// whole run aborts; otherwise only the affected unit is skipped.
type PermanentError struct {
	Err        error
	StatusCode int
	Misconfig  bool
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanent wraps an error as permanent (unit skipped, not retried).
func NewPermanent(err error, statusCode int) *PermanentError {
	return &PermanentError{Err: err, StatusCode: statusCode}
}

// NewMisconfig wraps an error as a fatal misconfiguration (run aborts).
func NewMisconfig(err error, statusCode int) *PermanentError {
	return &PermanentError{Err: err, StatusCode: statusCode, Misconfig: true}
}

// IsTransient reports whether err (anywhere in its chain) is retryable:
// an explicit TransientError, a network timeout, or a connection-level
// failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsMisconfig reports whether err carries a fatal misconfiguration marker.
func IsMisconfig(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe) && pe.Misconfig
}

// IsTransientHTTPStatus reports whether an HTTP status code is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
