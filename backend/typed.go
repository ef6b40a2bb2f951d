package backend

import (
	"context"
	"encoding/json"

	"github.com/strandq/strand"
	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
)

// Add admits a typed payload, JSON-marshaled. The payload type closure
// keeps job construction type-safe without making Backend generic.
func Add[T any](ctx context.Context, b Backend, data T, opts ...job.Option) (*job.Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, strand.Wrap(strand.KindSerialization, "marshal job payload", err)
	}
	return b.Add(ctx, payload, job.Build(opts...))
}

// Payload unmarshals a job's payload into T.
func Payload[T any](j *job.Job) (T, error) {
	var t T
	if len(j.Payload) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(j.Payload, &t); err != nil {
		return t, strand.Wrap(strand.KindSerialization, "unmarshal job payload", err)
	}
	return t, nil
}

// Process runs a typed processor: the job payload is unmarshaled into T
// and the result R is marshaled back.
func Process[T, R any](ctx context.Context, b Backend, concurrency int, fn func(ctx context.Context, j *job.Job, data T) (R, error)) error {
	return b.Process(ctx, func(ctx context.Context, j *job.Job) ([]byte, error) {
		data, err := Payload[T](j)
		if err != nil {
			return nil, err
		}
		result, err := fn(ctx, j, data)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, strand.Wrap(strand.KindSerialization, "marshal job result", err)
		}
		return out, nil
	}, concurrency)
}

// Exists reports whether a job with the given ID is present.
func Exists(ctx context.Context, b Backend, jobID id.JobID) (bool, error) {
	_, err := b.GetJob(ctx, jobID)
	if err == nil {
		return true, nil
	}
	if strand.IsKind(err, strand.KindJobNotFound) {
		return false, nil
	}
	return false, err
}
