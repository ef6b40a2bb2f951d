// Package job defines the job entity, its status state machine, and the
// per-job options shared by every other strand package.
package job

import (
	"time"

	"github.com/strandq/strand/id"
)

// Status represents the lifecycle status of a job. Transitions are
// monotonic except that a failed job may be manually returned to
// waiting via an explicit retry action.
type Status string

const (
	// StatusWaiting means the job is eligible to be picked up by a processor.
	StatusWaiting Status = "waiting"
	// StatusActive means a processor is currently executing the job.
	StatusActive Status = "active"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and exhausted its retry attempts.
	StatusFailed Status = "failed"
	// StatusDelayed means the job is waiting out a delay or retry backoff.
	StatusDelayed Status = "delayed"
	// StatusPaused means the job's queue is paused.
	StatusPaused Status = "paused"
)

// Statuses lists every job status, in lifecycle order.
var Statuses = []Status{
	StatusWaiting, StatusActive, StatusCompleted,
	StatusFailed, StatusDelayed, StatusPaused,
}

// ValidTransition reports whether moving a job from one status to
// another is allowed by the state machine. failed → waiting is the
// single non-monotonic edge, reserved for the explicit retry action.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusDelayed:
		return to == StatusWaiting || to == StatusActive
	case StatusWaiting:
		return to == StatusActive || to == StatusPaused
	case StatusPaused:
		return to == StatusWaiting || to == StatusActive
	case StatusActive:
		return to == StatusCompleted || to == StatusFailed || to == StatusDelayed
	case StatusFailed:
		return to == StatusWaiting
	case StatusCompleted:
		return false
	}
	return false
}

// Attempt records one failed execution of a job. AttemptNumber is
// 1-indexed; len(job.Attempts) always equals the number of recorded
// failed executions.
type Attempt struct {
	Number    int       `json:"number"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Job represents a unit of work with payload, scheduling metadata, and a
// lifecycle status. The backend owns persistence; this struct only
// describes state.
type Job struct {
	ID          id.JobID      `json:"id"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	Status      Status        `json:"status"`
	Priority    int           `json:"priority"`
	Delay       time.Duration `json:"delay,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	FailedAt    *time.Time    `json:"failed_at,omitempty"`
	Attempts    []Attempt     `json:"attempts,omitempty"`
	Options     Options       `json:"options"`
}

// New builds a job from a payload and options. The job starts waiting,
// or delayed when a positive delay is set.
func New(queue string, payload []byte, opts Options) *Job {
	now := time.Now().UTC()
	j := &Job{
		ID:        id.NewJobID(),
		Queue:     queue,
		Payload:   payload,
		Status:    StatusWaiting,
		CreatedAt: now,
		RunAt:     now,
		Options:   opts,
	}
	if opts.Priority != nil {
		j.Priority = *opts.Priority
	}
	if opts.Delay != nil && *opts.Delay > 0 {
		j.Delay = *opts.Delay
		j.RunAt = now.Add(*opts.Delay)
		j.Status = StatusDelayed
	}
	return j
}

// AttemptCount returns the number of recorded failed executions.
func (j *Job) AttemptCount() int { return len(j.Attempts) }

// RecordFailure appends an attempt record for a failed execution.
func (j *Job) RecordFailure(err error) {
	a := Attempt{
		Number:    len(j.Attempts) + 1,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	j.Attempts = append(j.Attempts, a)
}

// LastError returns the error message of the most recent attempt,
// or the empty string if the job has never failed.
func (j *Job) LastError() string {
	if len(j.Attempts) == 0 {
		return ""
	}
	return j.Attempts[len(j.Attempts)-1].Error
}

// Clone returns a deep copy of the job. Backends hand out clones so
// callers can mutate without racing against store internals.
func (j *Job) Clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.FailedAt != nil {
		t := *j.FailedAt
		cp.FailedAt = &t
	}
	if j.Attempts != nil {
		cp.Attempts = append([]Attempt(nil), j.Attempts...)
	}
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	cp.Options = j.Options.Clone()
	return &cp
}
