package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
)

// Process starts concurrency workers consuming from the queue. It
// returns once the workers are running; they stop when ctx is cancelled
// or the queue is closed.
func (q *Queue) Process(ctx context.Context, p backend.Processor, concurrency int) error {
	if q.isClosed() {
		return strand.New(strand.KindClosed, "queue is closed")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	for range concurrency {
		go q.worker(ctx, p)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, p backend.Processor) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			if q.IsPaused() {
				continue
			}
			q.promoteDue(ctx)
			j, err := q.claim(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					q.reportError("claim failed", err, slog.String("queue", q.name))
				}
				continue
			}
			if j == nil {
				continue
			}
			q.execute(ctx, j, p)
		}
	}
}

// promoteDue moves delayed jobs whose eligibility time has arrived onto
// the ready set.
func (q *Queue) promoteDue(ctx context.Context) {
	now := time.Now().UTC()
	ids, err := q.client.ZRangeByScore(ctx, q.keys.delayed(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: formatMilli(now),
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, jID := range ids {
		j, err := q.loadJob(ctx, jID)
		if err != nil {
			q.client.ZRem(ctx, q.keys.delayed(), jID)
			continue
		}
		j.Status = job.StatusWaiting
		pipe := q.client.TxPipeline()
		if err := q.saveJob(ctx, pipe, j); err != nil {
			continue
		}
		pipe.ZRem(ctx, q.keys.delayed(), jID)
		pipe.SMove(ctx, q.keys.status(string(job.StatusDelayed)), q.keys.status(string(job.StatusWaiting)), jID)
		pipe.ZAdd(ctx, q.keys.ready(), goredis.Z{Score: -float64(j.Priority), Member: jID})
		if _, err := pipe.Exec(ctx); err != nil {
			q.reportError("promote delayed job failed", err, slog.String("job_id", jID))
		}
	}
}

// claim atomically pops the highest-priority ready job and marks it
// active. Returns nil when no job is eligible. ZPopMin removes the
// member before the blob is loaded, so every failure after the pop
// must put the member back or the job would stay waiting but never
// claimable; only a missing blob is dropped for good.
func (q *Queue) claim(ctx context.Context) (*job.Job, error) {
	popped, err := q.client.ZPopMin(ctx, q.keys.ready(), 1).Result()
	if err != nil {
		return nil, strand.Wrap(strand.KindConnection, "pop ready job", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}
	jID, _ := popped[0].Member.(string)

	j, err := q.loadJob(ctx, jID)
	if err != nil {
		if !strand.IsKind(err, strand.KindJobNotFound) {
			q.requeueReady(ctx, popped[0])
		}
		return nil, err
	}
	now := time.Now().UTC()
	j.StartedAt = &now
	if err := q.setStatus(ctx, j, j.Status, job.StatusActive); err != nil {
		q.requeueReady(ctx, popped[0])
		return nil, err
	}
	return j, nil
}

// requeueReady puts a popped ready-set member back after a failed
// claim, preserving its priority score.
func (q *Queue) requeueReady(ctx context.Context, member goredis.Z) {
	if err := q.client.ZAdd(ctx, q.keys.ready(), member).Err(); err != nil {
		jID, _ := member.Member.(string)
		q.reportError("requeue ready job failed", err, slog.String("job_id", jID))
	}
}

// reportError logs a best-effort failure and surfaces it to
// subscribers as an error event.
func (q *Queue) reportError(msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("error", err.Error()))
	q.logger.Error(msg, attrs...)
	q.hub.Emit(backend.Event{Type: backend.EventError, Err: err})
}

func (q *Queue) execute(ctx context.Context, j *job.Job, p backend.Processor) {
	q.hub.Emit(backend.Event{Type: backend.EventActive, Job: j.Clone()})

	_, err := q.mw(ctx, j, func(ctx context.Context) ([]byte, error) {
		return p(ctx, j)
	})
	if err != nil {
		q.fail(ctx, j, err)
		return
	}
	q.complete(ctx, j)
}

func (q *Queue) complete(ctx context.Context, j *job.Job) {
	now := time.Now().UTC()
	j.CompletedAt = &now

	// A job whose terminal write fails stays in the active index until
	// an operator sweeps it with MoveToFailed or RemoveJob.
	if j.Options.RemoveOnComplete != nil && *j.Options.RemoveOnComplete {
		jID := j.ID.String()
		pipe := q.client.TxPipeline()
		pipe.Del(ctx, q.keys.job(jID))
		pipe.SRem(ctx, q.keys.status(string(job.StatusActive)), jID)
		if _, err := pipe.Exec(ctx); err != nil {
			q.reportError("remove completed job failed", err, slog.String("job_id", jID))
		}
	} else if err := q.setStatus(ctx, j, job.StatusActive, job.StatusCompleted); err != nil {
		q.reportError("mark job completed failed", err, slog.String("job_id", j.ID.String()))
		return
	}
	j.Status = job.StatusCompleted
	q.hub.Emit(backend.Event{Type: backend.EventCompleted, Job: j.Clone()})
}

func (q *Queue) fail(ctx context.Context, j *job.Job, cause error) {
	j.RecordFailure(cause)
	attempts := j.AttemptCount()

	if attempts < j.Options.MaxExecutions() && strand.Retriable(cause) {
		var delay time.Duration
		if j.Options.Retry != nil {
			delay = j.Options.Retry.JitteredBackoff(attempts, 0)
		}
		now := time.Now().UTC()
		j.RunAt = now.Add(delay)
		j.StartedAt = nil

		next := job.StatusWaiting
		if delay > 0 {
			next = job.StatusDelayed
		}
		jID := j.ID.String()
		j.Status = next
		pipe := q.client.TxPipeline()
		if err := q.saveJob(ctx, pipe, j); err != nil {
			q.reportError("persist retry failed", err, slog.String("job_id", jID))
			return
		}
		pipe.SMove(ctx, q.keys.status(string(job.StatusActive)), q.keys.status(string(next)), jID)
		if next == job.StatusDelayed {
			pipe.ZAdd(ctx, q.keys.delayed(), goredis.Z{Score: float64(j.RunAt.UnixMilli()), Member: jID})
		} else {
			pipe.ZAdd(ctx, q.keys.ready(), goredis.Z{Score: -float64(j.Priority), Member: jID})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			q.reportError("schedule retry failed", err, slog.String("job_id", jID))
			return
		}
		q.logger.Info("job scheduled for retry",
			slog.String("job_id", jID),
			slog.String("queue", q.name),
			slog.Int("attempts", attempts),
			slog.Duration("next_in", delay))
		return
	}

	now := time.Now().UTC()
	j.FailedAt = &now

	if j.Options.RemoveOnFail != nil && *j.Options.RemoveOnFail {
		jID := j.ID.String()
		pipe := q.client.TxPipeline()
		pipe.Del(ctx, q.keys.job(jID))
		pipe.SRem(ctx, q.keys.status(string(job.StatusActive)), jID)
		if _, err := pipe.Exec(ctx); err != nil {
			q.reportError("remove failed job failed", err, slog.String("job_id", jID))
		}
	} else if err := q.setStatus(ctx, j, job.StatusActive, job.StatusFailed); err != nil {
		q.reportError("mark job failed failed", err, slog.String("job_id", j.ID.String()))
		return
	}
	j.Status = job.StatusFailed
	q.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", q.name),
		slog.Int("attempts", attempts),
		slog.String("error", cause.Error()))
	q.hub.Emit(backend.Event{Type: backend.EventFailed, Job: j.Clone(), Err: cause})
}

// MoveToFailed records cause against the job and marks it terminally
// failed, bypassing the retry policy.
func (q *Queue) MoveToFailed(ctx context.Context, j *job.Job, cause error) error {
	j.RecordFailure(cause)
	now := time.Now().UTC()
	j.FailedAt = &now
	prev := j.Status
	if err := q.setStatus(ctx, j, prev, job.StatusFailed); err != nil {
		return err
	}
	q.hub.Emit(backend.Event{Type: backend.EventFailed, Job: j.Clone(), Err: cause})
	return nil
}

// RetryFailed moves a terminally failed job back to waiting for another
// round of execution. Attempt history is kept for audit.
func (q *Queue) RetryFailed(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := q.loadJob(ctx, jobID.String())
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusFailed || !job.ValidTransition(j.Status, job.StatusWaiting) {
		return nil, strand.Newf(strand.KindOperation,
			"job %s is %s, only failed jobs can be retried", jobID, j.Status)
	}

	j.RunAt = time.Now().UTC()
	j.FailedAt = nil
	j.StartedAt = nil
	jID := j.ID.String()
	j.Status = job.StatusWaiting
	pipe := q.client.TxPipeline()
	if err := q.saveJob(ctx, pipe, j); err != nil {
		return nil, err
	}
	pipe.SMove(ctx, q.keys.status(string(job.StatusFailed)), q.keys.status(string(job.StatusWaiting)), jID)
	pipe.ZAdd(ctx, q.keys.ready(), goredis.Z{Score: -float64(j.Priority), Member: jID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, strand.Wrap(strand.KindConnection, "retry failed job", err)
	}
	return j, nil
}
