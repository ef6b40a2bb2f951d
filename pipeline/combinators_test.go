package pipeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
	"github.com/strandq/strand/pipeline"
	"github.com/strandq/strand/retry"
)

func TestSequence_RunsInOrder(t *testing.T) {
	var order []int
	step := func(n int) pipeline.Operation[int] {
		return func(context.Context, backend.Backend) (int, error) {
			order = append(order, n)
			return n, nil
		}
	}

	got, err := pipeline.Sequence(step(1), step(2), step(3))(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("results = %v, want [1 2 3]", got)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("execution order = %v, want [1 2 3]", order)
	}
}

func TestSequence_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("step 2 failed")
	ran3 := false

	_, err := pipeline.Sequence(
		pipeline.Pure(1),
		pipeline.Fail[int](boom),
		func(context.Context, backend.Backend) (int, error) {
			ran3 = true
			return 3, nil
		},
	)(context.Background(), nil)

	if !errors.Is(err, boom) {
		t.Errorf("Sequence() error = %v, want step 2's error", err)
	}
	if ran3 {
		t.Error("step 3 ran after step 2 failed")
	}
}

func TestParallel_CollectsInArgumentOrder(t *testing.T) {
	slow := func(n int, d time.Duration) pipeline.Operation[int] {
		return func(context.Context, backend.Backend) (int, error) {
			time.Sleep(d)
			return n, nil
		}
	}

	got, err := pipeline.Parallel(
		slow(1, 30*time.Millisecond),
		slow(2, 10*time.Millisecond),
		slow(3, 20*time.Millisecond),
	)(context.Background(), nil)
	if err != nil {
		t.Fatalf("Parallel() error = %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("results = %v, want [1 2 3] despite settle order", got)
	}
}

func TestParallel_FirstErrorPropagatesWithoutCancellingSiblings(t *testing.T) {
	boom := errors.New("fast failure")
	var siblingFinished atomic.Bool

	start := time.Now()
	_, err := pipeline.Parallel(
		pipeline.Fail[int](boom),
		func(context.Context, backend.Backend) (int, error) {
			time.Sleep(100 * time.Millisecond)
			siblingFinished.Store(true)
			return 2, nil
		},
	)(context.Background(), nil)

	if !errors.Is(err, boom) {
		t.Fatalf("Parallel() error = %v, want the first failure", err)
	}
	// The error surfaces immediately, before the sibling settles.
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Parallel() returned after %v, should not wait for siblings", elapsed)
	}

	// The sibling keeps running to completion in the background.
	time.Sleep(150 * time.Millisecond)
	if !siblingFinished.Load() {
		t.Error("sibling operation was aborted; it should have completed")
	}
}

func TestWhen(t *testing.T) {
	ran := false
	op := func(context.Context, backend.Backend) (int, error) {
		ran = true
		return 7, nil
	}

	got, err := pipeline.When(pipeline.Pure(false), op)(context.Background(), nil)
	if err != nil {
		t.Fatalf("When() error = %v", err)
	}
	if got != 0 || ran {
		t.Errorf("When(false) = %d, ran = %v, want zero value and no execution", got, ran)
	}

	got, err = pipeline.When(pipeline.Pure(true), op)(context.Background(), nil)
	if err != nil {
		t.Fatalf("When() error = %v", err)
	}
	if got != 7 || !ran {
		t.Errorf("When(true) = %d, ran = %v, want 7 and executed", got, ran)
	}
}

func TestWhen_ConditionFailurePropagates(t *testing.T) {
	boom := errors.New("condition failed")
	_, err := pipeline.When(pipeline.Fail[bool](boom), pipeline.Pure(1))(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Errorf("When() error = %v, want the condition's error", err)
	}
}

func TestOrElse(t *testing.T) {
	got, err := pipeline.OrElse(
		pipeline.Fail[string](errors.New("primary down")),
		pipeline.Pure("fallback"),
	)(context.Background(), nil)
	if err != nil {
		t.Fatalf("OrElse() error = %v", err)
	}
	if got != "fallback" {
		t.Errorf("OrElse() = %q, want %q", got, "fallback")
	}

	got, err = pipeline.OrElse(
		pipeline.Pure("primary"),
		pipeline.Pure("fallback"),
	)(context.Background(), nil)
	if err != nil {
		t.Fatalf("OrElse() error = %v", err)
	}
	if got != "primary" {
		t.Errorf("OrElse() = %q, want first success %q", got, "primary")
	}
}

func TestWithRetry(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Type: retry.BackoffFixed, Delay: time.Millisecond}
	calls := 0
	op := func(context.Context, backend.Backend) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 99, nil
	}

	got, err := pipeline.WithRetry(op, p)(context.Background(), nil)
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if got != 99 {
		t.Errorf("WithRetry() = %d, want 99", got)
	}
	if calls != 3 {
		t.Errorf("operation ran %d times, want 3", calls)
	}
}

func TestWithTimeout_FastOperationPasses(t *testing.T) {
	got, err := pipeline.WithTimeout(pipeline.Pure(5), time.Second)(context.Background(), nil)
	if err != nil {
		t.Fatalf("WithTimeout() error = %v", err)
	}
	if got != 5 {
		t.Errorf("WithTimeout() = %d, want 5", got)
	}
}

func TestWithTimeout_SlowOperationKeepsRunning(t *testing.T) {
	var finished atomic.Bool
	slow := func(context.Context, backend.Backend) (int, error) {
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return 1, nil
	}

	_, err := pipeline.WithTimeout(slow, 10*time.Millisecond)(context.Background(), nil)
	if !strand.IsKind(err, strand.KindTimeout) {
		t.Fatalf("error kind = %q, want %q", strand.KindOf(err), strand.KindTimeout)
	}

	// The operation is detached, not aborted.
	time.Sleep(150 * time.Millisecond)
	if !finished.Load() {
		t.Error("operation was aborted; it should have completed after the timeout")
	}
}

func TestWithTimeout_CallerCancellationWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := func(ctx context.Context, _ backend.Backend) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	_, err := pipeline.WithTimeout(blocked, time.Minute)(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithTimeout() error = %v, want context.Canceled", err)
	}
}
