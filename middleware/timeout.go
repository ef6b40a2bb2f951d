package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/strandq/strand"
	"github.com/strandq/strand/job"
)

// Timeout returns middleware that enforces the per-job execution
// deadline from the job's options. The processor's context is cancelled
// at the deadline; a cooperative processor returns promptly and the
// error surfaces with the timeout kind.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Next) ([]byte, error) {
		if j.Options.Timeout == nil || *j.Options.Timeout <= 0 {
			return next(ctx)
		}

		d := *j.Options.Timeout
		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		result, err := next(ctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, strand.Wrap(strand.KindTimeout, "job execution deadline exceeded", err)
		}
		return result, err
	}
}
