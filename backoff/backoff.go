// Package backoff provides pluggable retry delay strategies for job execution.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	// Implementations never return a negative duration.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	if c.Interval < 0 {
		return 0
	}
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential grows the delay geometrically with the attempt number.
// Delay = min(Initial * Multiplier^(attempt-1), Max).
type Exponential struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultMultiplier is used when an Exponential has no multiplier set.
const DefaultMultiplier = 2.0

// NewExponential creates an exponential backoff strategy with the
// default multiplier of 2.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Multiplier: DefaultMultiplier, Max: maxDelay}
}

// Delay returns Initial * Multiplier^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := e.Multiplier
	if mult <= 0 {
		mult = DefaultMultiplier
	}
	d := time.Duration(float64(e.Initial) * math.Pow(mult, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	if d < 0 {
		return 0
	}
	return d
}

// ──────────────────────────────────────────────────
// Func (custom)
// ──────────────────────────────────────────────────

// Func adapts a caller-supplied function of the attempt number into a
// Strategy. Negative results are clamped to zero.
type Func func(attempt int) time.Duration

// Delay invokes the function, clamping negative results to zero.
func (f Func) Delay(attempt int) time.Duration {
	d := f(attempt)
	if d < 0 {
		return 0
	}
	return d
}

// Fibonacci returns a custom strategy where the delay follows the
// Fibonacci sequence scaled by base: base, base, 2*base, 3*base, 5*base, …
func Fibonacci(base time.Duration) Func {
	return func(attempt int) time.Duration {
		a, b := 1, 1
		for i := 1; i < attempt; i++ {
			a, b = b, a+b
		}
		return time.Duration(a) * base
	}
}

// Linear returns a custom strategy where the delay grows linearly:
// base, 2*base, 3*base, …
func Linear(base time.Duration) Func {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * base
	}
}

// ──────────────────────────────────────────────────
// Jitter
// ──────────────────────────────────────────────────

// DefaultJitterFactor is the jitter factor used when none is given.
const DefaultJitterFactor = 0.1

// Jitter adds a uniformly random amount in [0, base*Factor) on top of
// the wrapped strategy's delay, so simultaneous retries across many jobs
// decorrelate instead of thundering in lockstep. The result is always in
// [base, base + base*Factor).
type Jitter struct {
	Base   Strategy
	Factor float64
}

// NewJitter wraps a strategy with the default jitter factor.
func NewJitter(base Strategy) *Jitter {
	return &Jitter{Base: base, Factor: DefaultJitterFactor}
}

// Delay returns base + rand[0, base*Factor).
func (j *Jitter) Delay(attempt int) time.Duration {
	base := j.Base.Delay(attempt)
	factor := j.Factor
	if factor <= 0 {
		factor = DefaultJitterFactor
	}
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Float64()*factor*float64(base)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used when a retry policy
// sets none: jittered exponential with 1s initial and 1m max.
func DefaultStrategy() Strategy {
	return NewJitter(NewExponential(1*time.Second, 1*time.Minute))
}
