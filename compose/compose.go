// Package compose provides point-in-time dependency checks and
// chain / fan-out / fan-in job graph builders.
//
// Dependencies are advisory metadata: this package records them on job
// options and checks them at admission time, but enforcement of actual
// execution ordering is the Backend's responsibility. There is no
// suspend-until-dependencies-complete primitive; callers needing that
// must poll.
package compose

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
)

// WaitForDependencies fetches all dependency jobs concurrently and
// checks each is completed. It fails with a dependency error if any ID
// is unresolved or any resolved job's status is not completed, and
// otherwise returns exactly the dependency jobs, in argument order.
//
// This is a point-in-time check, not a blocking subscription.
func WaitForDependencies(ctx context.Context, b backend.Backend, deps []id.JobID) ([]*job.Job, error) {
	resolved := make([]*job.Job, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range deps {
		g.Go(func() error {
			j, err := b.GetJob(gctx, dep)
			if err != nil {
				return strand.Wrap(strand.KindDependency,
					"dependency "+dep.String()+" could not be resolved", err)
			}
			if j.Status != job.StatusCompleted {
				return strand.Newf(strand.KindDependency,
					"dependency %s is %s, want completed", dep, j.Status)
			}
			resolved[i] = j
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// AddWithDependencies checks that every dependency is already complete
// and then admits a new job recording deps in its options for audit.
//
// Despite what the option name suggests, this does not defer admission
// until dependencies later complete: the point-in-time check runs
// before admission and the call fails if any dependency is not yet
// completed.
func AddWithDependencies(ctx context.Context, b backend.Backend, payload []byte, deps []id.JobID, opts job.Options) (*job.Job, error) {
	if _, err := WaitForDependencies(ctx, b, deps); err != nil {
		return nil, err
	}
	opts = job.Merge(opts, job.Build(job.WithDependencies(deps...)))
	return b.Add(ctx, payload, opts)
}

// Chain admits two jobs in order, recording the first job's ID as a
// dependency of the second for audit. The second job is built from its
// own input: no synchronous result of the first exists at admission
// time.
func Chain(ctx context.Context, b backend.Backend, first, second backend.Item) (*job.Job, *job.Job, error) {
	j1, err := b.Add(ctx, first.Payload, first.Options)
	if err != nil {
		return nil, nil, err
	}

	opts := job.Merge(second.Options, job.Build(job.WithDependencies(j1.ID)))
	j2, err := b.Add(ctx, second.Payload, opts)
	if err != nil {
		return j1, nil, err
	}
	return j1, j2, nil
}

// FanOut admits one source job, then bulk-admits the targets with a
// back-reference to the source recorded on each. No ordering guarantee
// across the targets.
func FanOut(ctx context.Context, b backend.Backend, source backend.Item, targets []backend.Item) (*job.Job, []*job.Job, error) {
	src, err := b.Add(ctx, source.Payload, source.Options)
	if err != nil {
		return nil, nil, err
	}

	items := make([]backend.Item, len(targets))
	for i, t := range targets {
		items[i] = backend.Item{
			Payload: t.Payload,
			Options: job.Merge(t.Options, job.Build(job.WithDependencies(src.ID))),
		}
	}
	out, err := b.AddBulk(ctx, items)
	if err != nil {
		return src, out, err
	}
	return src, out, nil
}

// FanIn bulk-admits the source jobs, then admits one target referencing
// all of them. No ordering guarantee across the sources.
func FanIn(ctx context.Context, b backend.Backend, sources []backend.Item, target backend.Item) ([]*job.Job, *job.Job, error) {
	srcs, err := b.AddBulk(ctx, sources)
	if err != nil {
		return srcs, nil, err
	}

	ids := make([]id.JobID, len(srcs))
	for i, s := range srcs {
		ids[i] = s.ID
	}
	opts := job.Merge(target.Options, job.Build(job.WithDependencies(ids...)))
	tgt, err := b.Add(ctx, target.Payload, opts)
	if err != nil {
		return srcs, nil, err
	}
	return srcs, tgt, nil
}
