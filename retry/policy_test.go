package retry_test

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backoff"
	"github.com/strandq/strand/retry"
)

func TestPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  retry.Policy
		attempt int
		want    time.Duration
	}{
		{
			name:    "fixed same every attempt",
			policy:  retry.Policy{MaxAttempts: 5, Type: retry.BackoffFixed, Delay: 2 * time.Second},
			attempt: 4,
			want:    2 * time.Second,
		},
		{
			name:    "exponential first attempt is base",
			policy:  retry.Standard(),
			attempt: 1,
			want:    time.Second,
		},
		{
			name:    "exponential doubles",
			policy:  retry.Standard(),
			attempt: 3,
			want:    4 * time.Second,
		},
		{
			name:    "custom delegates to func",
			policy:  retry.FibonacciBackoff(5, time.Second),
			attempt: 5,
			want:    5 * time.Second,
		},
		{
			name:    "custom without func falls back to fixed delay",
			policy:  retry.Policy{MaxAttempts: 3, Type: retry.BackoffCustom, Delay: 3 * time.Second},
			attempt: 2,
			want:    3 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestPolicy_JitteredBackoff_WithinBounds(t *testing.T) {
	p := retry.Quick() // fixed 100ms
	factor := 1 + backoff.DefaultJitterFactor
	upper := time.Duration(float64(100*time.Millisecond) * factor)

	for range 100 {
		got := p.JitteredBackoff(1, 0)
		if got < 100*time.Millisecond || got >= upper {
			t.Errorf("JitteredBackoff(1, 0) = %v, want in [100ms, %v)", got, upper)
		}
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	transient := strand.New(strand.KindConnection, "connection reset")

	tests := []struct {
		name     string
		policy   retry.Policy
		attempts int
		err      error
		want     bool
	}{
		{"attempts remain, retriable error", retry.Quick(), 1, transient, true},
		{"attempts equal max", retry.Quick(), 3, transient, false},
		{"attempts beyond max", retry.Quick(), 5, transient, false},
		{"exhausted wins over retriable kind", retry.Quick(), 3, errors.New("anything"), false},
		{"closed resource never retried", retry.Quick(), 1, strand.New(strand.KindClosed, "queue is closed"), false},
		{"serialization never retried", retry.Quick(), 1, strand.New(strand.KindSerialization, "bad payload"), false},
		{"plain error is retriable", retry.Quick(), 1, errors.New("boom"), true},
		{"wrapped non-retriable stays non-retriable", retry.Quick(), 1, strand.Wrap(strand.KindSerialization, "decode", errors.New("eof")), false},
		{"no retry preset", retry.NoRetry(), 1, transient, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.ShouldRetry(tt.attempts, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempts, tt.err, got, tt.want)
			}
		})
	}
}

func TestMerge_TakesMaxAttempts(t *testing.T) {
	got := retry.Merge(retry.Quick(), retry.Aggressive())
	if got.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", got.MaxAttempts)
	}
}

func TestMerge_BackoffTypePrecedence(t *testing.T) {
	fixed := retry.Quick()
	exp := retry.Standard()
	custom := retry.LinearBackoff(3, time.Second)

	tests := []struct {
		name string
		x, y retry.Policy
		want retry.BackoffType
	}{
		{"fixed and fixed", fixed, fixed, retry.BackoffFixed},
		{"fixed and exponential", fixed, exp, retry.BackoffExponential},
		{"exponential and fixed", exp, fixed, retry.BackoffExponential},
		{"custom beats exponential", custom, exp, retry.BackoffCustom},
		{"custom beats fixed either side", fixed, custom, retry.BackoffCustom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.Merge(tt.x, tt.y); got.Type != tt.want {
				t.Errorf("Merge type = %q, want %q", got.Type, tt.want)
			}
		})
	}
}

func TestMerge_PrefersLeftCustomFunc(t *testing.T) {
	left := retry.FibonacciBackoff(3, time.Second)
	right := retry.LinearBackoff(3, time.Second)

	got := retry.Merge(left, right)
	if got.Custom == nil {
		t.Fatal("merged policy lost the custom func")
	}
	// Fibonacci(4) = 3s, Linear(4) = 4s.
	if d := got.Custom(4); d != 3*time.Second {
		t.Errorf("Custom(4) = %v, want %v (left side's func)", d, 3*time.Second)
	}
}

func TestMerge_ExponentialTakesLargerDelayAndMultiplier(t *testing.T) {
	x := retry.Policy{MaxAttempts: 3, Type: retry.BackoffExponential, Delay: time.Second, Multiplier: 3}
	y := retry.Policy{MaxAttempts: 3, Type: retry.BackoffExponential, Delay: 2 * time.Second, Multiplier: 2}

	got := retry.Merge(x, y)
	if got.Delay != 2*time.Second {
		t.Errorf("Delay = %v, want %v", got.Delay, 2*time.Second)
	}
	if got.Multiplier != 3 {
		t.Errorf("Multiplier = %v, want 3", got.Multiplier)
	}
}

func TestMerge_Associative(t *testing.T) {
	a := retry.Quick()
	b := retry.Standard()
	c := retry.Slow()

	left := retry.Merge(retry.Merge(a, b), c)
	right := retry.Merge(a, retry.Merge(b, c))

	if left.MaxAttempts != right.MaxAttempts || left.Type != right.Type ||
		left.Delay != right.Delay || left.Multiplier != right.Multiplier {
		t.Errorf("Merge not associative: (a·b)·c = %+v, a·(b·c) = %+v", left, right)
	}
}

func TestMerge_AssociativeRandomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 13))
	types := []retry.BackoffType{retry.BackoffFixed, retry.BackoffExponential, retry.BackoffCustom}

	randomPolicy := func() retry.Policy {
		p := retry.Policy{
			MaxAttempts: rng.IntN(11),
			Type:        types[rng.IntN(len(types))],
			Delay:       time.Duration(rng.IntN(60)) * time.Second,
		}
		switch p.Type {
		case retry.BackoffExponential:
			p.Multiplier = float64(rng.IntN(5))
		case retry.BackoffCustom:
			if rng.IntN(2) == 0 {
				p.Custom = backoff.Func(func(attempt int) time.Duration {
					return time.Duration(attempt) * time.Second
				})
			}
		}
		return p
	}

	for i := range 200 {
		a, b, c := randomPolicy(), randomPolicy(), randomPolicy()

		left := retry.Merge(retry.Merge(a, b), c)
		right := retry.Merge(a, retry.Merge(b, c))

		if left.MaxAttempts != right.MaxAttempts || left.Type != right.Type ||
			left.Delay != right.Delay || left.Multiplier != right.Multiplier {
			t.Fatalf("case %d: Merge not associative for\n a = %+v\n b = %+v\n c = %+v\n(a·b)·c = %+v\na·(b·c) = %+v",
				i, a, b, c, left, right)
		}
	}
}

func TestMergeAll(t *testing.T) {
	got, err := retry.MergeAll(retry.Quick(), retry.Standard(), retry.Slow())
	if err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}
	if got.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", got.MaxAttempts)
	}
	if got.Type != retry.BackoffExponential {
		t.Errorf("Type = %q, want %q", got.Type, retry.BackoffExponential)
	}
	if got.Delay != 30*time.Second {
		t.Errorf("Delay = %v, want %v", got.Delay, 30*time.Second)
	}
}

func TestMergeAll_EmptyFails(t *testing.T) {
	_, err := retry.MergeAll()
	if err == nil {
		t.Fatal("MergeAll() with no policies should fail")
	}
	if !strand.IsKind(err, strand.KindOperation) {
		t.Errorf("error kind = %q, want %q", strand.KindOf(err), strand.KindOperation)
	}
}

func TestMergeAll_SingleIsIdentity(t *testing.T) {
	p := retry.Aggressive()
	got, err := retry.MergeAll(p)
	if err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}
	if got.MaxAttempts != p.MaxAttempts || got.Type != p.Type ||
		got.Delay != p.Delay || got.Multiplier != p.Multiplier {
		t.Errorf("MergeAll(p) = %+v, want %+v", got, p)
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name        string
		policy      retry.Policy
		maxAttempts int
		backoffType retry.BackoffType
	}{
		{"NoRetry", retry.NoRetry(), 1, retry.BackoffFixed},
		{"Quick", retry.Quick(), 3, retry.BackoffFixed},
		{"Standard", retry.Standard(), 3, retry.BackoffExponential},
		{"Aggressive", retry.Aggressive(), 10, retry.BackoffExponential},
		{"Slow", retry.Slow(), 5, retry.BackoffFixed},
		{"FibonacciBackoff", retry.FibonacciBackoff(4, time.Second), 4, retry.BackoffCustom},
		{"LinearBackoff", retry.LinearBackoff(6, time.Second), 6, retry.BackoffCustom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.policy.MaxAttempts != tt.maxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", tt.policy.MaxAttempts, tt.maxAttempts)
			}
			if tt.policy.Type != tt.backoffType {
				t.Errorf("Type = %q, want %q", tt.policy.Type, tt.backoffType)
			}
		})
	}
}
