package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/retry"
)

// Sequence runs operations strictly in order, one at a time, stopping
// at and propagating the first failure. On success it returns the
// results in argument order.
func Sequence[T any](ops ...Operation[T]) Operation[[]T] {
	return func(ctx context.Context, b backend.Backend) ([]T, error) {
		results := make([]T, 0, len(ops))
		for _, op := range ops {
			v, err := op(ctx, b)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
		return results, nil
	}
}

// Parallel starts all operations concurrently. The first failure is
// propagated immediately, but sibling operations already in flight are
// NOT cancelled: their side effects still complete in the background,
// and any late failures are logged rather than silently discarded.
// On success the results are returned in argument order; the
// operations themselves settle in no guaranteed order.
func Parallel[T any](ops ...Operation[T]) Operation[[]T] {
	return func(ctx context.Context, b backend.Backend) ([]T, error) {
		results := make([]T, len(ops))
		type settled struct {
			idx int
			err error
		}
		ch := make(chan settled, len(ops))

		for i, op := range ops {
			go func() {
				v, err := op(ctx, b)
				if err == nil {
					results[i] = v
				}
				ch <- settled{idx: i, err: err}
			}()
		}

		for done := 0; done < len(ops); done++ {
			s := <-ch
			if s.err == nil {
				continue
			}
			// Drain stragglers in the background so their failures
			// are logged, not lost.
			remaining := len(ops) - done - 1
			go func() {
				for range remaining {
					if late := <-ch; late.err != nil {
						slog.Default().Warn("abandoned parallel operation failed",
							slog.Int("index", late.idx),
							slog.String("error", late.err.Error()),
						)
					}
				}
			}()
			return nil, s.err
		}
		return results, nil
	}
}

// When evaluates the condition first and skips op entirely when it is
// false, yielding the zero value of T.
func When[T any](cond Operation[bool], op Operation[T]) Operation[T] {
	return func(ctx context.Context, b backend.Backend) (T, error) {
		var zero T
		ok, err := cond(ctx, b)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, nil
		}
		return op(ctx, b)
	}
}

// OrElse runs first; on any failure the error is discarded and second
// runs instead.
func OrElse[T any](first, second Operation[T]) Operation[T] {
	return func(ctx context.Context, b backend.Backend) (T, error) {
		v, err := first(ctx, b)
		if err == nil {
			return v, nil
		}
		return second(ctx, b)
	}
}

// WithRetry wraps an entire operation in the retry policy engine: the
// whole operation re-runs on retriable failures until the policy's
// attempts are exhausted, then the last error surfaces unchanged.
func WithRetry[T any](op Operation[T], p retry.Policy) Operation[T] {
	return func(ctx context.Context, b backend.Backend) (T, error) {
		return retry.Do(ctx, p, func(ctx context.Context) (T, error) {
			return op(ctx, b)
		}, nil)
	}
}

// WithTimeout races the operation against a timer. On timeout a
// timeout error is returned, but the underlying operation is NOT
// aborted: it keeps running with its result discarded, and a late
// failure is logged. Cancelling the caller's context still propagates
// into the operation as usual.
func WithTimeout[T any](op Operation[T], d time.Duration) Operation[T] {
	return func(ctx context.Context, b backend.Backend) (T, error) {
		var zero T
		type settled struct {
			v   T
			err error
		}
		ch := make(chan settled, 1)

		go func() {
			v, err := op(ctx, b)
			ch <- settled{v: v, err: err}
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case s := <-ch:
			return s.v, s.err
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			go func() {
				if s := <-ch; s.err != nil {
					slog.Default().Warn("abandoned operation failed after timeout",
						slog.Duration("timeout", d),
						slog.String("error", s.err.Error()),
					)
				}
			}()
			return zero, strand.Newf(strand.KindTimeout, "operation timed out after %v", d)
		}
	}
}
