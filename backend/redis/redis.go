// Package redis implements the Backend contract on Redis for
// multi-process deployments. Jobs are stored as JSON blobs, indexed by
// status Sets, with Sorted Sets driving readiness: a "ready" set
// ordered by priority and a "delayed" set scored by eligibility time.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	q := redis.New("emails", client)
//
// Lifecycle event subscriptions are local to this process. Claiming is
// read-then-act over several commands; under concurrent consumers a job
// is protected by the atomic ZPopMin on the ready set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
	"github.com/strandq/strand/middleware"
	"github.com/strandq/strand/schedule"
)

// Compile-time interface check.
var _ backend.Backend = (*Queue)(nil)

// Queue is a Redis-backed Backend implementation. The caller owns the
// Redis client lifecycle.
type Queue struct {
	name         string
	client       goredis.Cmdable
	keys         keys
	logger       *slog.Logger
	mw           middleware.Middleware
	pollInterval time.Duration

	hub    *backend.Hub
	stopCh chan struct{}
	closed chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithMiddleware sets the middleware chain processors run through.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mw = middleware.Chain(mws...) }
}

// WithPollInterval sets how often idle workers poll for eligible jobs.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// New creates a Redis-backed queue with the given name.
func New(name string, client goredis.Cmdable, opts ...Option) *Queue {
	q := &Queue{
		name:         name,
		client:       client,
		keys:         newKeys(name),
		logger:       slog.Default(),
		pollInterval: 250 * time.Millisecond,
		hub:          backend.NewHub(),
		stopCh:       make(chan struct{}),
		closed:       make(chan struct{}),
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

// Client returns the underlying Redis client.
func (q *Queue) Client() goredis.Cmdable { return q.client }

func (q *Queue) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// ──────────────────────────────────────────────────
// Persistence helpers
// ──────────────────────────────────────────────────

func (q *Queue) saveJob(ctx context.Context, pipe goredis.Cmdable, j *job.Job) error {
	blob, err := json.Marshal(j)
	if err != nil {
		return strand.Wrap(strand.KindSerialization, "marshal job", err)
	}
	pipe.Set(ctx, q.keys.job(j.ID.String()), blob, 0)
	return nil
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*job.Job, error) {
	blob, err := q.client.Get(ctx, q.keys.job(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, strand.Newf(strand.KindJobNotFound, "job %s", jobID)
	}
	if err != nil {
		return nil, strand.Wrap(strand.KindConnection, "load job", err)
	}
	var j job.Job
	if err := json.Unmarshal(blob, &j); err != nil {
		return nil, strand.Wrap(strand.KindSerialization, "unmarshal job", err)
	}
	return &j, nil
}

// setStatus moves the job between status index sets and rewrites the blob.
func (q *Queue) setStatus(ctx context.Context, j *job.Job, from, to job.Status) error {
	j.Status = to
	pipe := q.client.TxPipeline()
	if err := q.saveJob(ctx, pipe, j); err != nil {
		return err
	}
	pipe.SMove(ctx, q.keys.status(string(from)), q.keys.status(string(to)), j.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return strand.Wrap(strand.KindConnection, "update job status", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// Add admits a single job.
func (q *Queue) Add(ctx context.Context, payload []byte, opts job.Options) (*job.Job, error) {
	if q.isClosed() {
		return nil, strand.New(strand.KindClosed, "queue is closed")
	}

	if opts.Rate != nil {
		active, err := q.JobsByStatus(ctx, job.StatusActive)
		if err != nil {
			return nil, err
		}
		if !schedule.CanAdmit(active, *opts.Rate) {
			return nil, strand.Newf(strand.KindRateLimited,
				"queue %s: admission would exceed %d active jobs per %v",
				q.name, opts.Rate.Max, opts.Rate.Window)
		}
	}

	j := job.New(q.name, payload, opts)
	jID := j.ID.String()

	pipe := q.client.TxPipeline()
	if err := q.saveJob(ctx, pipe, j); err != nil {
		return nil, err
	}
	pipe.SAdd(ctx, q.keys.status(string(j.Status)), jID)
	if j.Status == job.StatusDelayed {
		pipe.ZAdd(ctx, q.keys.delayed(), goredis.Z{
			Score:  float64(j.RunAt.UnixMilli()),
			Member: jID,
		})
	} else {
		pipe.ZAdd(ctx, q.keys.ready(), goredis.Z{
			Score:  -float64(j.Priority),
			Member: jID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, strand.Wrap(strand.KindConnection, "admit job", err)
	}

	q.hub.Emit(backend.Event{Type: backend.EventAdmitted, Job: j.Clone()})
	return j, nil
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

// ──────────────────────────────────────────────────
// Lookup / removal
// ──────────────────────────────────────────────────

// GetJob retrieves a job by ID.
func (q *Queue) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return q.loadJob(ctx, jobID.String())
}

// RemoveJob removes a job and all its index entries.
func (q *Queue) RemoveJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	j, err := q.loadJob(ctx, jID)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.Del(ctx, q.keys.job(jID))
	pipe.SRem(ctx, q.keys.status(string(j.Status)), jID)
	pipe.ZRem(ctx, q.keys.ready(), jID)
	pipe.ZRem(ctx, q.keys.delayed(), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return strand.Wrap(strand.KindConnection, "remove job", err)
	}
	return nil
}

// JobsByStatus returns all jobs with the given status.
func (q *Queue) JobsByStatus(ctx context.Context, status job.Status) ([]*job.Job, error) {
	ids, err := q.client.SMembers(ctx, q.keys.status(string(status))).Result()
	if err != nil {
		return nil, strand.Wrap(strand.KindConnection, "list jobs by status", err)
	}

	out := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, err := q.loadJob(ctx, jID)
		if strand.IsKind(err, strand.KindJobNotFound) {
			continue // index raced a removal
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// FailedJobs returns all terminally failed jobs.
func (q *Queue) FailedJobs(ctx context.Context) ([]*job.Job, error) {
	return q.JobsByStatus(ctx, job.StatusFailed)
}

// JobCounts returns the number of jobs per status.
func (q *Queue) JobCounts(ctx context.Context) (map[job.Status]int, error) {
	counts := make(map[job.Status]int, len(job.Statuses))
	for _, s := range job.Statuses {
		n, err := q.client.SCard(ctx, q.keys.status(string(s))).Result()
		if err != nil {
			return nil, strand.Wrap(strand.KindConnection, "count jobs", err)
		}
		if n > 0 {
			counts[s] = int(n)
		}
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Queue control
// ──────────────────────────────────────────────────

// Pause stops handing out jobs across all consumers of this queue.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.client.Set(ctx, q.keys.paused(), "1", 0).Err(); err != nil {
		return strand.Wrap(strand.KindConnection, "pause queue", err)
	}
	q.hub.Emit(backend.Event{Type: backend.EventPaused})
	return nil
}

// Resume reverses Pause.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.client.Del(ctx, q.keys.paused()).Err(); err != nil {
		return strand.Wrap(strand.KindConnection, "resume queue", err)
	}
	q.hub.Emit(backend.Event{Type: backend.EventResumed})
	return nil
}

// IsPaused reports whether the queue is paused.
func (q *Queue) IsPaused() bool {
	n, err := q.client.Exists(context.Background(), q.keys.paused()).Result()
	if err != nil {
		q.logger.Error("paused check failed", slog.String("error", err.Error()))
		return false
	}
	return n > 0
}

// Drain removes all waiting and delayed jobs.
func (q *Queue) Drain(ctx context.Context) error {
	for _, s := range []job.Status{job.StatusWaiting, job.StatusDelayed} {
		ids, err := q.client.SMembers(ctx, q.keys.status(string(s))).Result()
		if err != nil {
			return strand.Wrap(strand.KindConnection, "drain queue", err)
		}
		for _, jID := range ids {
			pipe := q.client.TxPipeline()
			pipe.Del(ctx, q.keys.job(jID))
			pipe.SRem(ctx, q.keys.status(string(s)), jID)
			pipe.ZRem(ctx, q.keys.ready(), jID)
			pipe.ZRem(ctx, q.keys.delayed(), jID)
			if _, err := pipe.Exec(ctx); err != nil {
				return strand.Wrap(strand.KindConnection, "drain queue", err)
			}
		}
	}
	q.hub.Emit(backend.Event{Type: backend.EventDrained})
	return nil
}

// Clean removes jobs with the given status whose terminal timestamp is
// older than grace, returning how many were removed.
func (q *Queue) Clean(ctx context.Context, grace time.Duration, status job.Status) (int, error) {
	jobs, err := q.JobsByStatus(ctx, status)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-grace)

	removed := 0
	for _, j := range jobs {
		ts := j.CreatedAt
		switch {
		case status == job.StatusCompleted && j.CompletedAt != nil:
			ts = *j.CompletedAt
		case status == job.StatusFailed && j.FailedAt != nil:
			ts = *j.FailedAt
		}
		if !ts.Before(cutoff) {
			continue
		}
		if err := q.RemoveJob(ctx, j.ID); err != nil && !strand.IsKind(err, strand.KindJobNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Subscribe registers a handler for lifecycle events. Subscriptions are
// local to this process.
func (q *Queue) Subscribe(h backend.Handler) *backend.Subscription {
	return q.hub.Subscribe(h)
}

// Unsubscribe removes a previously registered handler.
func (q *Queue) Unsubscribe(s *backend.Subscription) {
	q.hub.Unsubscribe(s)
}

// Close stops local workers. The Redis client is owned by the caller
// and stays open.
func (q *Queue) Close() error {
	if q.isClosed() {
		return strand.New(strand.KindClosed, "queue already closed")
	}
	close(q.closed)
	close(q.stopCh)
	return nil
}

func formatMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
