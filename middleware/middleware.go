// Package middleware provides composable middleware for job processors.
// Middleware wraps processor calls synchronously and can modify execution
// (recover from panics, log, enforce timeouts, add tracing).
package middleware

import (
	"context"

	"github.com/strandq/strand/job"
)

// Next is the terminal function that executes the job's processor and
// returns its result payload.
type Next func(ctx context.Context) ([]byte, error)

// Middleware wraps a Next with cross-cutting logic. It receives the
// current context, the job being executed, and the next step to call.
// Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, j *job.Job, next Next) ([]byte, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → processor
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Next) ([]byte, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) ([]byte, error) {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
