// Package pipeline provides backend-parametric operations: pure values
// describing work that, given a concrete Backend, produce a fallible
// result. Constructing an Operation has no side effects; only invoking
// it against a Backend does, so pipelines can be assembled and tested
// before any concrete Backend is chosen.
package pipeline

import (
	"context"

	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
)

// Operation is a computation that, given a concrete Backend, produces
// an asynchronous fallible result of type T.
type Operation[T any] func(ctx context.Context, b backend.Backend) (T, error)

// Pure lifts a plain value into an Operation that always succeeds.
func Pure[T any](v T) Operation[T] {
	return func(context.Context, backend.Backend) (T, error) {
		return v, nil
	}
}

// Fail lifts an error into an Operation that always fails.
func Fail[T any](err error) Operation[T] {
	return func(context.Context, backend.Backend) (T, error) {
		var zero T
		return zero, err
	}
}

// Enqueue describes admitting a single job.
func Enqueue(payload []byte, opts job.Options) Operation[*job.Job] {
	return func(ctx context.Context, b backend.Backend) (*job.Job, error) {
		return b.Add(ctx, payload, opts)
	}
}

// EnqueueItems describes a bulk admission.
func EnqueueItems(items []backend.Item) Operation[[]*job.Job] {
	return func(ctx context.Context, b backend.Backend) ([]*job.Job, error) {
		return b.AddBulk(ctx, items)
	}
}

// Fetch describes looking a job up by ID.
func Fetch(jobID id.JobID) Operation[*job.Job] {
	return func(ctx context.Context, b backend.Backend) (*job.Job, error) {
		return b.GetJob(ctx, jobID)
	}
}

// Remove describes removing a job by ID.
func Remove(jobID id.JobID) Operation[struct{}] {
	return func(ctx context.Context, b backend.Backend) (struct{}, error) {
		return struct{}{}, b.RemoveJob(ctx, jobID)
	}
}

// Exists describes checking whether a job is present.
func Exists(jobID id.JobID) Operation[bool] {
	return func(ctx context.Context, b backend.Backend) (bool, error) {
		return backend.Exists(ctx, b, jobID)
	}
}

// Counts describes reading the per-status job counts.
func Counts() Operation[map[job.Status]int] {
	return func(ctx context.Context, b backend.Backend) (map[job.Status]int, error) {
		return b.JobCounts(ctx)
	}
}

// AdmitFunc admits a job with caller-supplied options merged over some
// baseline. See WithDefaults.
type AdmitFunc func(ctx context.Context, b backend.Backend, payload []byte, opts job.Options) (*job.Job, error)

// WithDefaults returns an admission function that right-merges the
// caller's options over the given defaults: every defined caller field
// overrides the default, undefined fields fall through.
func WithDefaults(defaults job.Options) AdmitFunc {
	return func(ctx context.Context, b backend.Backend, payload []byte, opts job.Options) (*job.Job, error) {
		return b.Add(ctx, payload, job.Merge(defaults, opts))
	}
}
