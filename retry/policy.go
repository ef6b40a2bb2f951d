// Package retry implements the retry policy engine: declarative retry
// policies, backoff computation, retryability predicates, an associative
// policy-merge algebra, and the retry execution loop.
package retry

import (
	"time"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backoff"
)

// BackoffType selects how the delay before a retry is computed.
type BackoffType string

const (
	// BackoffFixed uses the same delay for every attempt.
	BackoffFixed BackoffType = "fixed"
	// BackoffExponential grows the delay geometrically per attempt.
	BackoffExponential BackoffType = "exponential"
	// BackoffCustom delegates to a caller-supplied function.
	BackoffCustom BackoffType = "custom"
)

// Policy is a declarative retry policy: how many times, and with what
// delay, a failed operation should be retried. The zero value is not
// useful; use a preset or fill MaxAttempts explicitly.
type Policy struct {
	// MaxAttempts is the total number of executions allowed (>= 1).
	MaxAttempts int `json:"max_attempts"`

	// Type selects the backoff computation.
	Type BackoffType `json:"backoff_type"`

	// Delay is the base backoff delay (>= 0).
	Delay time.Duration `json:"backoff_delay"`

	// Multiplier is the exponential growth factor (default 2).
	Multiplier float64 `json:"backoff_multiplier,omitempty"`

	// Custom supplies the delay for BackoffCustom. When nil, Delay is
	// used as a fallback. Functions do not survive serialization.
	Custom backoff.Func `json:"-"`
}

// Strategy materializes the policy's backoff computation.
func (p Policy) Strategy() backoff.Strategy {
	switch p.Type {
	case BackoffExponential:
		return &backoff.Exponential{Initial: p.Delay, Multiplier: p.Multiplier}
	case BackoffCustom:
		if p.Custom != nil {
			return p.Custom
		}
		return backoff.NewConstant(p.Delay)
	default:
		return backoff.NewConstant(p.Delay)
	}
}

// Backoff returns the base delay before retry attempt n (1-indexed).
// Never negative.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.Strategy().Delay(attempt)
}

// JitteredBackoff returns the base backoff plus a uniformly random
// amount in [0, base*factor), so correlated retries across many jobs
// spread out instead of thundering together. A non-positive factor uses
// backoff.DefaultJitterFactor.
func (p Policy) JitteredBackoff(attempt int, factor float64) time.Duration {
	j := backoff.Jitter{Base: p.Strategy(), Factor: factor}
	return j.Delay(attempt)
}

// ShouldRetry reports whether another attempt is allowed: false once
// attempts (the number of recorded failed executions) has reached
// MaxAttempts, false for permanently non-retriable error kinds
// (closed-resource, serialization), true otherwise.
func (p Policy) ShouldRetry(attempts int, err error) bool {
	if attempts >= p.MaxAttempts {
		return false
	}
	return strand.Retriable(err)
}

// ──────────────────────────────────────────────────
// Merge algebra
// ──────────────────────────────────────────────────

// Merge combines two policies into one at least as patient as either.
// MaxAttempts takes the max. If either side is custom the result is
// custom, preferring the left side's function when both are; else if
// either side is exponential the result is exponential with the larger
// delay and multiplier; else both are fixed and the larger delay wins.
// Merge is associative.
func Merge(x, y Policy) Policy {
	out := Policy{MaxAttempts: max(x.MaxAttempts, y.MaxAttempts)}
	out.Delay = max(x.Delay, y.Delay)

	switch {
	case x.Type == BackoffCustom || y.Type == BackoffCustom:
		out.Type = BackoffCustom
		if x.Type == BackoffCustom && x.Custom != nil {
			out.Custom = x.Custom
		} else if y.Custom != nil {
			out.Custom = y.Custom
		}
	case x.Type == BackoffExponential || y.Type == BackoffExponential:
		out.Type = BackoffExponential
		out.Multiplier = max(multiplierOf(x), multiplierOf(y))
	default:
		out.Type = BackoffFixed
	}
	return out
}

func multiplierOf(p Policy) float64 {
	if p.Multiplier > 0 {
		return p.Multiplier
	}
	return backoff.DefaultMultiplier
}

// MergeAll folds policies left-to-right through Merge. Folding an empty
// list is a precondition violation, not a silent default.
func MergeAll(policies ...Policy) (Policy, error) {
	if len(policies) == 0 {
		return Policy{}, strand.New(strand.KindOperation, "merge of empty policy list")
	}
	out := policies[0]
	for _, p := range policies[1:] {
		out = Merge(out, p)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Presets
// ──────────────────────────────────────────────────

// NoRetry allows a single execution and no retries.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1, Type: BackoffFixed}
}

// Quick retries up to 3 attempts with a fixed 100ms delay. Suited to
// transient blips on fast local resources.
func Quick() Policy {
	return Policy{MaxAttempts: 3, Type: BackoffFixed, Delay: 100 * time.Millisecond}
}

// Standard retries up to 3 attempts with exponential backoff starting
// at 1s and doubling.
func Standard() Policy {
	return Policy{MaxAttempts: 3, Type: BackoffExponential, Delay: time.Second, Multiplier: 2}
}

// Aggressive retries up to 10 attempts with exponential backoff starting
// at 500ms and doubling.
func Aggressive() Policy {
	return Policy{MaxAttempts: 10, Type: BackoffExponential, Delay: 500 * time.Millisecond, Multiplier: 2}
}

// Slow retries up to 5 attempts with a fixed 30s delay, for rate-limited
// or slow-recovering upstreams.
func Slow() Policy {
	return Policy{MaxAttempts: 5, Type: BackoffFixed, Delay: 30 * time.Second}
}

// FibonacciBackoff retries up to maxAttempts with delays following the
// Fibonacci sequence scaled by base.
func FibonacciBackoff(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Type:        BackoffCustom,
		Delay:       base,
		Custom:      backoff.Fibonacci(base),
	}
}

// LinearBackoff retries up to maxAttempts with delays growing linearly
// from base.
func LinearBackoff(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Type:        BackoffCustom,
		Delay:       base,
		Custom:      backoff.Linear(base),
	}
}
