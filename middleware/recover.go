package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/strandq/strand"
	"github.com/strandq/strand/job"
)

// Recover returns middleware that recovers from panics in the processor
// chain. Panics are converted to execution errors and logged with a
// stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Next) (result []byte, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job processor panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("queue", j.Queue),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				result = nil
				retErr = strand.Newf(strand.KindExecution, "panic in job %s: %v", j.ID, r)
			}
		}()
		return next(ctx)
	}
}
