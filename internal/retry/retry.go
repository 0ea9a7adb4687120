// Package retry runs an operation with exponential backoff and jitter. It is
// used at the edges of the registry (broker publishes, the initial database
// connection), never inside a store transaction.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// NotifyFunc is called before each backoff sleep with the attempt that just
// failed (1-based), its error and the delay about to be slept.
type NotifyFunc func(attempt int, err error, next time.Duration)

// Do calls fn up to maxAttempts times with exponential backoff and jitter.
// It stops early if fn returns nil, fn returns a *PermanentError, or ctx is
// cancelled. baseDelay doubles on each retry with +-25% jitter.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	return DoNotify(ctx, maxAttempts, baseDelay, fn, nil)
}

// DoNotify is Do with a hook invoked before every retry.
func DoNotify(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error, notify NotifyFunc) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if attempt == maxAttempts {
			break
		}

		sleep := jittered(delay)
		if notify != nil {
			notify(attempt, err, sleep)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}

		delay *= 2
	}

	return err
}

// jittered returns d +-25%.
func jittered(d time.Duration) time.Duration {
	jitter := d / 4
	if jitter <= 0 {
		return d
	}
	return d - jitter + rand.N(2*jitter+1)
}
