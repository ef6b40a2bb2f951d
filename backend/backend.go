// Package backend defines the contract a storage/dispatch engine must
// satisfy for the strand core, plus typed payload helpers. The core
// never owns persistence; it orchestrates job transitions through this
// interface. Implementations: backend/memory (reference, tests) and
// backend/redis (production).
package backend

import (
	"context"
	"time"

	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
)

// Processor executes one job and returns an optional result payload.
// Returning an error records a failed attempt against the job.
type Processor func(ctx context.Context, j *job.Job) ([]byte, error)

// Item is one entry of a bulk admission.
type Item struct {
	Payload []byte
	Options job.Options
}

// Backend is the storage/dispatch engine consumed by the strand core.
// Every method is fallible; failures carry a *strand.Error kind so
// callers can branch programmatically.
type Backend interface {
	// Name returns the queue name this backend serves.
	Name() string

	// Add admits a single job. The job starts waiting, or delayed when
	// the options carry a positive delay.
	Add(ctx context.Context, payload []byte, opts job.Options) (*job.Job, error)

	// AddBulk admits many jobs. No ordering guarantee across the
	// admitted jobs.
	AddBulk(ctx context.Context, items []Item) ([]*job.Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)

	// RemoveJob removes a job by ID.
	RemoveJob(ctx context.Context, jobID id.JobID) error

	// JobsByStatus returns all jobs with the given status.
	JobsByStatus(ctx context.Context, status job.Status) ([]*job.Job, error)

	// FailedJobs returns all terminally failed jobs.
	FailedJobs(ctx context.Context) ([]*job.Job, error)

	// Process starts executing jobs with the given processor at the
	// given concurrency. It returns once processing has started; it
	// does not block until drained.
	Process(ctx context.Context, p Processor, concurrency int) error

	// Pause stops handing out jobs to processors. Active jobs run to
	// completion.
	Pause(ctx context.Context) error

	// Resume reverses Pause.
	Resume(ctx context.Context) error

	// IsPaused reports whether the queue is paused.
	IsPaused() bool

	// Drain removes all waiting and delayed jobs.
	Drain(ctx context.Context) error

	// Clean removes jobs with the given status whose terminal timestamp
	// is older than grace, returning how many were removed.
	Clean(ctx context.Context, grace time.Duration, status job.Status) (int, error)

	// JobCounts returns the number of jobs per status.
	JobCounts(ctx context.Context) (map[job.Status]int, error)

	// Subscribe registers a handler for lifecycle events and returns a
	// token for Unsubscribe.
	Subscribe(h Handler) *Subscription

	// Unsubscribe removes a previously registered handler.
	Unsubscribe(s *Subscription)

	// MoveToFailed records a failed attempt with the given cause and
	// marks the job terminally failed.
	MoveToFailed(ctx context.Context, j *job.Job, cause error) error

	// RetryFailed returns a failed job to waiting (the explicit manual
	// retry action, the single non-monotonic status edge). Recorded
	// attempts are kept for audit.
	RetryFailed(ctx context.Context, jobID id.JobID) (*job.Job, error)

	// Close shuts the backend down. Further calls fail with a
	// closed-resource error.
	Close() error
}
