// Package strand provides job scheduling and retry orchestration for Go.
// It decides when a unit of work should run, how many times and with what
// delay a failing job should be retried, and how jobs with dependency
// relationships (chains, fan-out, fan-in) are composed.
//
// Strand is designed as a library, not a service. Application code builds
// pipeline values (pure, no side effects) out of schedule, retry, and
// compose helpers; side effects occur only when a pipeline is invoked
// against a concrete Backend.
//
// # Quick Start
//
//	q := memory.New("emails", memory.WithLogger(logger))
//	j, err := backend.Add(ctx, q, SendEmail{To: "a@b.c"},
//	    job.WithRetry(retry.Standard()),
//	    job.WithDelay(schedule.UntilTime(9, 30)),
//	)
//
// # Architecture
//
// Each concern is its own subpackage: job (model), backoff and retry
// (policy engine), schedule (time arithmetic and admission), compose
// (dependency graphs), pipeline (backend-parametric operations), and
// backend (the storage/dispatch contract plus memory and redis
// implementations).
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package strand
