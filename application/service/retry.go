package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixml/taxon/domain/pipeline"
)

// Default call policy values.
const (
	DefaultCallTimeout  = 60 * time.Second
	DefaultCallRetries  = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultBackoff      = 2.0
)

// CallPolicy bounds one external call: each attempt gets Timeout, failed
// attempts are retried Retries times with exponential backoff.
type CallPolicy struct {
	Timeout      time.Duration
	Retries      int
	InitialDelay time.Duration
	Backoff      float64
}

// DefaultCallPolicy returns the default policy.
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{
		Timeout:      DefaultCallTimeout,
		Retries:      DefaultCallRetries,
		InitialDelay: DefaultInitialDelay,
		Backoff:      DefaultBackoff,
	}
}

func (p CallPolicy) normalized() CallPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultCallTimeout
	}
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Backoff < 1 {
		p.Backoff = DefaultBackoff
	}
	return p
}

// malformedError marks a response that parsed badly. A fresh generation
// may well succeed, so it is retried like a transient failure.
type malformedError struct {
	err error
}

func (e malformedError) Error() string   { return "malformed response: " + e.err.Error() }
func (e malformedError) Unwrap() error   { return e.err }
func (e malformedError) Temporary() bool { return true }

func malformed(err error) error {
	return malformedError{err: err}
}

// call runs fn under the policy. Only transient errors are retried; the
// parent context ending stops the loop at once.
func call(ctx context.Context, policy CallPolicy, logger *slog.Logger, operation string, fn func(ctx context.Context) error) error {
	policy = policy.normalized()
	delay := policy.InitialDelay

	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying call",
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * policy.Backoff)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		if !pipeline.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%s: %d attempts: %w", operation, policy.Retries+1, lastErr)
}
