// Package provider adapts OpenAI-compatible endpoints to the generation and
// embedding ports.
package provider

import (
	"errors"
	"net/http"
)

// Common errors.
var (
	// ErrUnsupportedOperation indicates the provider was not configured for
	// the requested capability.
	ErrUnsupportedOperation = errors.New("operation not supported by this provider")

	// ErrEmptyResponse indicates the endpoint answered without content.
	ErrEmptyResponse = errors.New("empty provider response")

	errEmbeddingCountMismatch  = errors.New("embedding response count mismatch")
	errUpstreamProviderFailure = errors.New("upstream provider failure")
)

// ProviderError wraps a failed provider call with the operation and HTTP
// status that produced it.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewProviderError creates a new ProviderError.
func NewProviderError(operation string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.operation + ": " + e.message
	if e.cause != nil && e.cause.Error() != e.message {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Operation returns the operation that failed.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the HTTP status code, or 0 when none was received.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *ProviderError) Message() string { return e.message }

// IsRateLimited reports whether the endpoint rejected the call for rate.
func (e *ProviderError) IsRateLimited() bool {
	return e.statusCode == http.StatusTooManyRequests
}

// Temporary reports whether retrying the call later may succeed.
func (e *ProviderError) Temporary() bool {
	switch {
	case e.statusCode == http.StatusTooManyRequests, e.statusCode >= http.StatusInternalServerError:
		return true
	case e.statusCode != 0:
		return false
	case errors.Is(e.cause, errUpstreamProviderFailure):
		return false
	}
	return isRetryable(e.cause)
}
