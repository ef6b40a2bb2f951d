package retry

import (
	"context"
	"time"

	"github.com/strandq/strand/backoff"
)

// OnRetry observes each retry decision. attempt is the 1-indexed attempt
// that just failed; err is the failure that triggered the retry.
type OnRetry func(attempt int, err error)

// Do executes fn, retrying per the policy. On failure, if attempts
// remain and the error is retriable, the observer (if any) is invoked,
// the goroutine sleeps for the jittered backoff, and fn runs again.
// Once attempts are exhausted the last error is returned unchanged,
// never re-wrapped into a different kind.
//
// The context is honored at every suspension point: cancelling it
// aborts an in-progress backoff wait and returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), onRetry OnRetry) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= maxAttempts || !p.ShouldRetry(attempt, err) {
			return zero, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if waitErr := sleep(ctx, p.JitteredBackoff(attempt, backoff.DefaultJitterFactor)); waitErr != nil {
			return zero, waitErr
		}
	}
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry OnRetry) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, onRetry)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
