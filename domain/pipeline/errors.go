// Package pipeline defines the tagged result returned by every mutating
// pipeline operation and the error taxonomy behind it.
package pipeline

import (
	"context"
	"errors"
)

// ErrorKind classifies why a unit or a phase failed.
type ErrorKind string

// ErrorKind values.
const (
	KindTransient     ErrorKind = "transient"
	KindIntegrity     ErrorKind = "integrity"
	KindConfiguration ErrorKind = "configuration"
	KindUnavailable   ErrorKind = "unavailable"
	KindInternal      ErrorKind = "internal"
)

// Sentinel errors that map onto an ErrorKind.
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrUnavailable   = errors.New("store unavailable")
	ErrIntegrity     = errors.New("data integrity")
)

// temporary is implemented by errors that are worth retrying.
type temporary interface {
	Temporary() bool
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return KindTransient
	}
	return KindInternal
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
