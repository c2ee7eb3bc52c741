package triage

import (
	"context"
	"errors"
	"time"
)

// Default retry budget for model and delivery calls: one retry after a fixed
// three second delay, no backoff.
const (
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = 3 * time.Second
)

// RetryPolicy is a bounded fixed-delay retry applied at the call sites of the
// two model stages and delivery. Attempts counts the initial call.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration

	// Sleep is overridable for tests; defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the pipeline's standard retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultRetryAttempts, Delay: DefaultRetryDelay}
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so RetryPolicy.Do stops immediately and returns err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do runs op, retrying failed attempts up to the policy's budget. A
// PermanentError aborts the loop and is returned unwrapped. Context
// cancellation during the delay aborts with the context error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}

		if attempt < attempts {
			if serr := sleep(ctx, p.Delay); serr != nil {
				return serr
			}
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
