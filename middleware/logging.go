package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/strandq/strand/job"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Next) ([]byte, error) {
		logger.Info("job started",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
			slog.Int("attempts", j.AttemptCount()),
		)

		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_id", j.ID.String()),
				slog.String("queue", j.Queue),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_id", j.ID.String()),
				slog.String("queue", j.Queue),
				slog.Duration("elapsed", elapsed),
			)
		}

		return result, err
	}
}
