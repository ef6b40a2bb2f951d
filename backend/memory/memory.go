// Package memory provides a fully in-memory Backend. Safe for
// concurrent use. Intended for unit testing, development, and
// single-process deployments that don't need persistence.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
	"github.com/strandq/strand/middleware"
	"github.com/strandq/strand/schedule"
)

// Compile-time interface check.
var _ backend.Backend = (*Queue)(nil)

// Queue is an in-memory Backend implementation.
type Queue struct {
	name         string
	logger       *slog.Logger
	mw           middleware.Middleware
	pollInterval time.Duration

	mu     sync.RWMutex
	jobs   map[string]*job.Job
	paused bool
	closed bool

	hub    *backend.Hub
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithMiddleware sets the middleware chain processors run through.
// Defaults to Recover only.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mw = middleware.Chain(mws...) }
}

// WithPollInterval sets how often idle workers poll for eligible jobs.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// New creates an empty in-memory queue with the given name.
func New(name string, opts ...Option) *Queue {
	q := &Queue{
		name:         name,
		logger:       slog.Default(),
		pollInterval: 20 * time.Millisecond,
		jobs:         make(map[string]*job.Job),
		hub:          backend.NewHub(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.mw == nil {
		q.mw = middleware.Chain(middleware.Recover(q.logger), middleware.Timeout(q.logger))
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// Add admits a single job.
func (q *Queue) Add(_ context.Context, payload []byte, opts job.Options) (*job.Job, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, strand.New(strand.KindClosed, "queue is closed")
	}

	if opts.Rate != nil {
		if !schedule.CanAdmit(q.activeLocked(), *opts.Rate) {
			q.mu.Unlock()
			return nil, strand.Newf(strand.KindRateLimited,
				"queue %s: admission would exceed %d active jobs per %v",
				q.name, opts.Rate.Max, opts.Rate.Window)
		}
	}

	j := job.New(q.name, payload, opts)
	q.jobs[j.ID.String()] = j
	out := j.Clone()
	q.mu.Unlock()

	q.hub.Emit(backend.Event{Type: backend.EventAdmitted, Job: out})
	return out, nil
}

// AddBulk admits many jobs. No ordering guarantee across the admitted
// jobs.
func (q *Queue) AddBulk(ctx context.Context, items []backend.Item) ([]*job.Job, error) {
	out := make([]*job.Job, 0, len(items))
	for _, item := range items {
		j, err := q.Add(ctx, item.Payload, item.Options)
		if err != nil {
			return out, err
		}
		out = append(out, j)
	}
	return out, nil
}

// activeLocked returns the active jobs. Caller holds q.mu.
func (q *Queue) activeLocked() []*job.Job {
	var active []*job.Job
	for _, j := range q.jobs {
		if j.Status == job.StatusActive {
			active = append(active, j)
		}
	}
	return active
}

// ──────────────────────────────────────────────────
// Lookup / removal
// ──────────────────────────────────────────────────

// GetJob retrieves a job by ID.
func (q *Queue) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	j, ok := q.jobs[jobID.String()]
	if !ok {
		return nil, strand.Newf(strand.KindJobNotFound, "job %s", jobID)
	}
	return j.Clone(), nil
}

// RemoveJob removes a job by ID.
func (q *Queue) RemoveJob(_ context.Context, jobID id.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobID.String()
	if _, ok := q.jobs[key]; !ok {
		return strand.Newf(strand.KindJobNotFound, "job %s", jobID)
	}
	delete(q.jobs, key)
	return nil
}

// JobsByStatus returns all jobs with the given status.
func (q *Queue) JobsByStatus(_ context.Context, status job.Status) ([]*job.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*job.Job
	for _, j := range q.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

// FailedJobs returns all terminally failed jobs.
func (q *Queue) FailedJobs(ctx context.Context) ([]*job.Job, error) {
	return q.JobsByStatus(ctx, job.StatusFailed)
}

// JobCounts returns the number of jobs per status.
func (q *Queue) JobCounts(_ context.Context) (map[job.Status]int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts := make(map[job.Status]int, len(job.Statuses))
	for _, j := range q.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Processing
// ──────────────────────────────────────────────────

// Process launches concurrency worker goroutines that poll for eligible
// jobs and execute them through the middleware chain. It returns
// immediately; workers stop when ctx is cancelled or the queue closes.
func (q *Queue) Process(ctx context.Context, p backend.Processor, concurrency int) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return strand.New(strand.KindClosed, "queue is closed")
	}
	q.mu.Unlock()

	if concurrency < 1 {
		concurrency = 1
	}
	for range concurrency {
		q.wg.Add(1)
		go q.worker(ctx, p)
	}

	q.logger.Info("processing started",
		slog.String("queue", q.name),
		slog.Int("concurrency", concurrency),
	)
	return nil
}

func (q *Queue) worker(ctx context.Context, p backend.Processor) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
		}

		j := q.claim()
		if j == nil {
			continue
		}
		q.execute(ctx, p, j)
	}
}

// claim picks the eligible job with the highest priority (earliest
// RunAt breaking ties), marks it active, and returns a clone. Returns
// nil when nothing is eligible.
func (q *Queue) claim() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.paused || q.closed {
		return nil
	}

	now := time.Now().UTC()
	var candidates []*job.Job
	for _, j := range q.jobs {
		eligible := j.Status == job.StatusWaiting ||
			(j.Status == job.StatusDelayed && !j.RunAt.After(now))
		if eligible {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	j := candidates[0]
	j.Status = job.StatusActive
	n := now
	j.StartedAt = &n
	return j.Clone()
}

// execute runs one claimed job through middleware and the processor,
// then applies the retry policy on failure.
func (q *Queue) execute(ctx context.Context, p backend.Processor, j *job.Job) {
	q.hub.Emit(backend.Event{Type: backend.EventActive, Job: j.Clone()})

	_, err := q.mw(ctx, j, func(ctx context.Context) ([]byte, error) {
		return p(ctx, j)
	})

	now := time.Now().UTC()
	if err == nil {
		q.complete(j.ID, now)
		return
	}
	q.fail(j.ID, err, now)
}

func (q *Queue) complete(jobID id.JobID, now time.Time) {
	q.mu.Lock()
	j, ok := q.jobs[jobID.String()]
	if !ok {
		q.mu.Unlock()
		return
	}
	j.Status = job.StatusCompleted
	j.CompletedAt = &now
	out := j.Clone()
	if j.Options.RemoveOnComplete != nil && *j.Options.RemoveOnComplete {
		delete(q.jobs, jobID.String())
	}
	q.mu.Unlock()

	q.hub.Emit(backend.Event{Type: backend.EventCompleted, Job: out})
}

// fail records the attempt and either schedules a retry with backoff or
// marks the job terminally failed.
func (q *Queue) fail(jobID id.JobID, cause error, now time.Time) {
	q.mu.Lock()
	j, ok := q.jobs[jobID.String()]
	if !ok {
		q.mu.Unlock()
		return
	}
	j.RecordFailure(cause)

	if j.AttemptCount() < j.Options.MaxExecutions() && strand.Retriable(cause) {
		var delay time.Duration
		if j.Options.Retry != nil {
			delay = j.Options.Retry.JitteredBackoff(j.AttemptCount(), 0)
		}
		j.RunAt = now.Add(delay)
		if delay > 0 {
			j.Status = job.StatusDelayed
		} else {
			j.Status = job.StatusWaiting
		}
		j.StartedAt = nil
		next := j.RunAt
		attempts := j.AttemptCount()
		q.mu.Unlock()

		q.logger.Info("job scheduled for retry",
			slog.String("job_id", jobID.String()),
			slog.String("queue", q.name),
			slog.Int("attempts", attempts),
			slog.Time("next_run_at", next),
		)
		return
	}

	j.Status = job.StatusFailed
	j.FailedAt = &now
	out := j.Clone()
	if j.Options.RemoveOnFail != nil && *j.Options.RemoveOnFail {
		delete(q.jobs, jobID.String())
	}
	q.mu.Unlock()

	q.hub.Emit(backend.Event{Type: backend.EventFailed, Job: out, Err: cause})
	q.logger.Warn("job failed after exhausting attempts",
		slog.String("job_id", jobID.String()),
		slog.String("queue", q.name),
		slog.Int("attempts", out.AttemptCount()),
		slog.String("error", cause.Error()),
	)
}

// ReportProgress emits a progress event for an active job.
func (q *Queue) ReportProgress(_ context.Context, jobID id.JobID, percent int) error {
	q.mu.RLock()
	j, ok := q.jobs[jobID.String()]
	if !ok {
		q.mu.RUnlock()
		return strand.Newf(strand.KindJobNotFound, "job %s", jobID)
	}
	out := j.Clone()
	q.mu.RUnlock()

	q.hub.Emit(backend.Event{Type: backend.EventProgress, Job: out, Progress: percent})
	return nil
}

// ──────────────────────────────────────────────────
// Failure management
// ──────────────────────────────────────────────────

// MoveToFailed records a failed attempt with the given cause and marks
// the job terminally failed, bypassing the retry policy.
func (q *Queue) MoveToFailed(_ context.Context, target *job.Job, cause error) error {
	now := time.Now().UTC()

	q.mu.Lock()
	j, ok := q.jobs[target.ID.String()]
	if !ok {
		q.mu.Unlock()
		return strand.Newf(strand.KindJobNotFound, "job %s", target.ID)
	}
	j.RecordFailure(cause)
	j.Status = job.StatusFailed
	j.FailedAt = &now
	out := j.Clone()
	q.mu.Unlock()

	q.hub.Emit(backend.Event{Type: backend.EventFailed, Job: out, Err: cause})
	return nil
}

// RetryFailed returns a failed job to waiting. Recorded attempts are
// kept for audit; the job becomes immediately eligible again.
func (q *Queue) RetryFailed(_ context.Context, jobID id.JobID) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID.String()]
	if !ok {
		return nil, strand.Newf(strand.KindJobNotFound, "job %s", jobID)
	}
	if !job.ValidTransition(j.Status, job.StatusWaiting) || j.Status != job.StatusFailed {
		return nil, strand.Newf(strand.KindOperation,
			"job %s is %s, only failed jobs can be retried", jobID, j.Status)
	}
	j.Status = job.StatusWaiting
	j.RunAt = time.Now().UTC()
	j.FailedAt = nil
	j.StartedAt = nil
	return j.Clone(), nil
}

// ──────────────────────────────────────────────────
// Queue control
// ──────────────────────────────────────────────────

// Pause stops handing out jobs. Active jobs run to completion.
func (q *Queue) Pause(_ context.Context) error {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.hub.Emit(backend.Event{Type: backend.EventPaused})
	return nil
}

// Resume reverses Pause.
func (q *Queue) Resume(_ context.Context) error {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.hub.Emit(backend.Event{Type: backend.EventResumed})
	return nil
}

// IsPaused reports whether the queue is paused.
func (q *Queue) IsPaused() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.paused
}

// Drain removes all waiting and delayed jobs.
func (q *Queue) Drain(_ context.Context) error {
	q.mu.Lock()
	for key, j := range q.jobs {
		if j.Status == job.StatusWaiting || j.Status == job.StatusDelayed {
			delete(q.jobs, key)
		}
	}
	q.mu.Unlock()

	q.hub.Emit(backend.Event{Type: backend.EventDrained})
	return nil
}

// Clean removes jobs with the given status whose terminal timestamp is
// older than grace, returning how many were removed.
func (q *Queue) Clean(_ context.Context, grace time.Duration, status job.Status) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for key, j := range q.jobs {
		if j.Status != status {
			continue
		}
		if cleanTimestamp(j).Before(cutoff) {
			delete(q.jobs, key)
			removed++
		}
	}
	return removed, nil
}

// cleanTimestamp returns the timestamp Clean compares against the
// grace cutoff.
func cleanTimestamp(j *job.Job) time.Time {
	switch {
	case j.Status == job.StatusCompleted && j.CompletedAt != nil:
		return *j.CompletedAt
	case j.Status == job.StatusFailed && j.FailedAt != nil:
		return *j.FailedAt
	default:
		return j.CreatedAt
	}
}

// Subscribe registers a handler for lifecycle events.
func (q *Queue) Subscribe(h backend.Handler) *backend.Subscription {
	return q.hub.Subscribe(h)
}

// Unsubscribe removes a previously registered handler.
func (q *Queue) Unsubscribe(s *backend.Subscription) {
	q.hub.Unsubscribe(s)
}

// Close marks the queue closed and waits for in-flight workers to stop.
// Workers notice the closed flag on their next claim attempt.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return strand.New(strand.KindClosed, "queue already closed")
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	return nil
}
