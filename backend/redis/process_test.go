package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/strandq/strand"
	"github.com/strandq/strand/backend"
)

// claimStubClient fakes the handful of commands claim issues. The
// embedded Cmdable stays nil, so any unexpected command panics.
type claimStubClient struct {
	goredis.Cmdable

	popped  []goredis.Z
	getErr  error
	zaddErr error

	requeued []goredis.Z
}

func (c *claimStubClient) ZPopMin(ctx context.Context, key string, count ...int64) *goredis.ZSliceCmd {
	cmd := goredis.NewZSliceCmd(ctx)
	cmd.SetVal(c.popped)
	return cmd
}

func (c *claimStubClient) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	cmd.SetErr(c.getErr)
	return cmd
}

func (c *claimStubClient) ZAdd(ctx context.Context, key string, members ...goredis.Z) *goredis.IntCmd {
	c.requeued = append(c.requeued, members...)
	cmd := goredis.NewIntCmd(ctx)
	if c.zaddErr != nil {
		cmd.SetErr(c.zaddErr)
	}
	return cmd
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClaim_RequeuesJobOnLoadFailure(t *testing.T) {
	stub := &claimStubClient{
		popped: []goredis.Z{{Score: -5, Member: "job_abc"}},
		getErr: errors.New("connection reset"),
	}
	q := New("emails", stub, WithLogger(quietLogger()))

	j, err := q.claim(context.Background())
	if err == nil {
		t.Fatal("claim() with a failing load should return an error")
	}
	if !strand.IsKind(err, strand.KindConnection) {
		t.Errorf("claim() kind = %v, want %v", strand.KindOf(err), strand.KindConnection)
	}
	if j != nil {
		t.Errorf("claim() job = %+v, want nil", j)
	}
	if len(stub.requeued) != 1 {
		t.Fatalf("requeued %d members, want 1", len(stub.requeued))
	}
	if got := stub.requeued[0]; got.Member != "job_abc" || got.Score != -5 {
		t.Errorf("requeued member = %+v, want the popped member with its score", got)
	}
}

func TestClaim_DropsMissingJob(t *testing.T) {
	stub := &claimStubClient{
		popped: []goredis.Z{{Score: 0, Member: "job_gone"}},
		getErr: goredis.Nil,
	}
	q := New("emails", stub, WithLogger(quietLogger()))

	_, err := q.claim(context.Background())
	if !strand.IsKind(err, strand.KindJobNotFound) {
		t.Fatalf("claim() kind = %v, want %v", strand.KindOf(err), strand.KindJobNotFound)
	}
	if len(stub.requeued) != 0 {
		t.Errorf("requeued %d members for a deleted job, want 0", len(stub.requeued))
	}
}

func TestClaim_EmitsErrorEventWhenRequeueFails(t *testing.T) {
	stub := &claimStubClient{
		popped:  []goredis.Z{{Score: -1, Member: "job_abc"}},
		getErr:  errors.New("connection reset"),
		zaddErr: errors.New("still down"),
	}
	q := New("emails", stub, WithLogger(quietLogger()))

	var events []backend.Event
	q.Subscribe(func(e backend.Event) { events = append(events, e) })

	if _, err := q.claim(context.Background()); err == nil {
		t.Fatal("claim() with a failing load should return an error")
	}

	if len(events) != 1 || events[0].Type != backend.EventError {
		t.Fatalf("events = %+v, want a single error event", events)
	}
	if events[0].Err == nil {
		t.Error("error event carries no error")
	}
}
