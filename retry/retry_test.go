package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strandq/strand"
	"github.com/strandq/strand/retry"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), retry.Quick(), func(context.Context) (int, error) {
		calls++
		return 42, nil
	}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := retry.Policy{MaxAttempts: 5, Type: retry.BackoffFixed, Delay: time.Millisecond}
	calls := 0
	got, err := retry.Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDo_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Type: retry.BackoffFixed, Delay: time.Millisecond}
	last := errors.New("attempt 3 failure")
	calls := 0
	_, err := retry.Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("earlier failure")
		}
		return 0, last
	}, nil)
	if !errors.Is(err, last) {
		t.Errorf("Do() error = %v, want the final attempt's error unchanged", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDo_StopsOnNonRetriableError(t *testing.T) {
	p := retry.Policy{MaxAttempts: 5, Type: retry.BackoffFixed, Delay: time.Millisecond}
	cause := strand.New(strand.KindSerialization, "malformed payload")
	calls := 0
	_, err := retry.Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, cause
	}, nil)
	if !errors.Is(err, cause) {
		t.Errorf("Do() error = %v, want %v", err, cause)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (non-retriable)", calls)
	}
}

func TestDo_ObserverSeesEachRetry(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Type: retry.BackoffFixed, Delay: time.Millisecond}
	var observed []int
	_, _ = retry.Do(context.Background(), p, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	}, func(attempt int, err error) {
		observed = append(observed, attempt)
	})

	// 3 attempts means 2 retry decisions; the final failure is not one.
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("observer saw attempts %v, want [1 2]", observed)
	}
}

func TestDo_CancelAbortsBackoffWait(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Type: retry.BackoffFixed, Delay: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(ctx, p, func(context.Context) (int, error) {
			return 0, errors.New("boom")
		}, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond) // let it enter the backoff wait
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
}

func TestDo_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}, nil)
	if err == nil {
		t.Fatal("Do() should return the error")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRun_WrapsDo(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Type: retry.BackoffFixed, Delay: time.Millisecond}
	calls := 0
	err := retry.Run(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}
