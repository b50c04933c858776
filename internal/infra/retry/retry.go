package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Policy bounds one call site's retry budget. Distinct budgets are configured
// for generic DB operations and for mail delivery.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// ExhaustedError is returned when every attempt of a labelled operation
// failed with a transient error.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Label, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// transientError marks an error as retryable.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient wraps an error to signal the executor it may retry.
// Validation and conflict errors must never be wrapped.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable via Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Executor runs fallible operations against unreliable downstreams with a
// bounded fixed-backoff retry loop. Only errors marked Transient are retried;
// anything else surfaces immediately. Callers must only wrap idempotent or
// existence-checked steps.
type Executor struct {
	log *zerolog.Logger
}

func NewExecutor(logger *zerolog.Logger) *Executor {
	return &Executor{log: logger}
}

// Execute runs op up to policy.MaxAttempts times, sleeping policy.Backoff
// between attempts. Exhaustion surfaces as *ExhaustedError wrapping the last
// transient failure.
func (e *Executor) Execute(ctx context.Context, label string, policy Policy, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		last = errors.Unwrap(err)
		e.log.Warn().Str("op", label).Int("attempt", attempt).Int("max_attempts", attempts).
			Err(last).Msg("transient failure")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Backoff):
		}
	}

	e.log.Error().Str("op", label).Int("attempts", attempts).Err(last).Msg("retries exhausted")
	return &ExhaustedError{Label: label, Attempts: attempts, Last: last}
}
