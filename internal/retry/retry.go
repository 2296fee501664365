// File: internal/retry/retry.go
// Package retry provides a single, generic execution wrapper for fallible
// browser operations. Call sites supply an operation-specific classification
// predicate instead of hand-rolling their own backoff loops.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the final error once the retry budget is spent.
// Classify with errors.Is.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy configures one execution. Supplied per call site; immutable.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	// InitialDelay is the sleep before the first retry.
	InitialDelay time.Duration
	// BackoffFactor multiplies the delay after every retry. Must be > 1 so the
	// total wall clock stays bounded by a geometric series.
	BackoffFactor float64
	// ShouldRetry decides whether the error at the given attempt index is
	// transient. A nil predicate retries everything.
	ShouldRetry func(err error, attempt int) bool
	// OnRetry is invoked exactly once per retry (not per attempt), before the
	// backoff sleep, with the upcoming retry's attempt index and the delay
	// about to be applied. Used for diagnostics such as screenshots.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// Do executes op under the policy. op receives the zero-based attempt index.
// The returned error is: nil on success; the operation's error unwrapped when
// ShouldRetry rejects it (fatal short-circuit) or when ctx is done; or the
// final error wrapped in ErrExhausted once MaxRetries retries have failed.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context, attempt int) error) error {
	delay := policy.InitialDelay

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		if attempt == policy.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err, attempt) {
			return err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * policy.BackoffFactor)
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func(ctx context.Context, attempt int) error {
		value, opErr := op(ctx, attempt)
		if opErr != nil {
			return opErr
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// sleep waits for d, aborting promptly when ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
