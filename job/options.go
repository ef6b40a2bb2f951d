package job

import (
	"time"

	"github.com/strandq/strand/id"
	"github.com/strandq/strand/retry"
)

// RateLimit caps how many jobs may become active within a rolling window.
type RateLimit struct {
	// Max is the maximum number of active jobs within the window.
	Max int `json:"max"`
	// Window is the rolling window duration.
	Window time.Duration `json:"window"`
}

// Options configures per-job behavior. Fields are pointers so that a
// merge can distinguish "unset" from an explicit zero: every defined
// field on the right operand of Merge overrides the left, the empty
// Options value is the merge identity, and Merge is associative.
type Options struct {
	// Priority determines dequeue ordering. Higher values run first.
	Priority *int `json:"priority,omitempty"`

	// Delay defers the job's first eligibility after admission.
	Delay *time.Duration `json:"delay,omitempty"`

	// MaxAttempts caps total executions. Overridden by Retry.MaxAttempts
	// when a retry policy is set.
	MaxAttempts *int `json:"max_attempts,omitempty"`

	// Retry is the retry policy applied when the processor fails.
	Retry *retry.Policy `json:"retry,omitempty"`

	// Timeout is the maximum duration one execution may run.
	Timeout *time.Duration `json:"timeout,omitempty"`

	// RemoveOnComplete removes the job from the backend once completed.
	RemoveOnComplete *bool `json:"remove_on_complete,omitempty"`

	// RemoveOnFail removes the job once it has terminally failed.
	RemoveOnFail *bool `json:"remove_on_fail,omitempty"`

	// Dependencies records jobs this one logically follows. Advisory
	// metadata: the core checks it at specific points (compose package),
	// it is not an execution barrier owned by the core.
	Dependencies []id.JobID `json:"dependencies,omitempty"`

	// Rate is the admission rate limit checked at enqueue time.
	Rate *RateLimit `json:"rate,omitempty"`
}

// Clone returns a deep copy. Every pointer field and slice is
// duplicated, so mutations on the copy never reach the original.
func (o Options) Clone() Options {
	out := o
	if o.Priority != nil {
		v := *o.Priority
		out.Priority = &v
	}
	if o.Delay != nil {
		v := *o.Delay
		out.Delay = &v
	}
	if o.MaxAttempts != nil {
		v := *o.MaxAttempts
		out.MaxAttempts = &v
	}
	if o.Retry != nil {
		p := *o.Retry
		out.Retry = &p
	}
	if o.Timeout != nil {
		v := *o.Timeout
		out.Timeout = &v
	}
	if o.RemoveOnComplete != nil {
		v := *o.RemoveOnComplete
		out.RemoveOnComplete = &v
	}
	if o.RemoveOnFail != nil {
		v := *o.RemoveOnFail
		out.RemoveOnFail = &v
	}
	if o.Dependencies != nil {
		out.Dependencies = append([]id.JobID(nil), o.Dependencies...)
	}
	if o.Rate != nil {
		r := *o.Rate
		out.Rate = &r
	}
	return out
}

// Merge returns a new Options where every defined field of o2 overrides
// the corresponding field of o. Right-biased and associative; the zero
// Options is the identity.
func Merge(o, o2 Options) Options {
	out := o
	if o2.Priority != nil {
		out.Priority = o2.Priority
	}
	if o2.Delay != nil {
		out.Delay = o2.Delay
	}
	if o2.MaxAttempts != nil {
		out.MaxAttempts = o2.MaxAttempts
	}
	if o2.Retry != nil {
		out.Retry = o2.Retry
	}
	if o2.Timeout != nil {
		out.Timeout = o2.Timeout
	}
	if o2.RemoveOnComplete != nil {
		out.RemoveOnComplete = o2.RemoveOnComplete
	}
	if o2.RemoveOnFail != nil {
		out.RemoveOnFail = o2.RemoveOnFail
	}
	if o2.Dependencies != nil {
		out.Dependencies = o2.Dependencies
	}
	if o2.Rate != nil {
		out.Rate = o2.Rate
	}
	return out
}

// MergeAll folds a list of Options left-to-right through Merge,
// so the last defined value of each field wins.
func MergeAll(opts ...Options) Options {
	var out Options
	for _, o := range opts {
		out = Merge(out, o)
	}
	return out
}

// MaxExecutions returns the total number of executions the job's options
// allow: Retry.MaxAttempts if a retry policy is set, else MaxAttempts,
// else 1.
func (o Options) MaxExecutions() int {
	if o.Retry != nil && o.Retry.MaxAttempts > 0 {
		return o.Retry.MaxAttempts
	}
	if o.MaxAttempts != nil && *o.MaxAttempts > 0 {
		return *o.MaxAttempts
	}
	return 1
}

// Option is a functional option that sets a single Options field.
type Option func(*Options)

// Build collapses functional options into an Options value.
func Build(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPriority sets the job priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = &p }
}

// WithDelay defers the job's first eligibility by d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = &d }
}

// WithMaxAttempts caps total executions when no retry policy is set.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = &n }
}

// WithRetry sets the retry policy applied on processor failure.
func WithRetry(p retry.Policy) Option {
	return func(o *Options) { o.Retry = &p }
}

// WithTimeout sets the maximum duration one execution may run.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = &d }
}

// WithRemoveOnComplete removes the job from the backend once completed.
func WithRemoveOnComplete(remove bool) Option {
	return func(o *Options) { o.RemoveOnComplete = &remove }
}

// WithRemoveOnFail removes the job once it has terminally failed.
func WithRemoveOnFail(remove bool) Option {
	return func(o *Options) { o.RemoveOnFail = &remove }
}

// WithDependencies records the jobs this one logically follows.
func WithDependencies(deps ...id.JobID) Option {
	return func(o *Options) { o.Dependencies = deps }
}

// WithRate sets the admission rate limit checked at enqueue time.
func WithRate(max int, window time.Duration) Option {
	return func(o *Options) { o.Rate = &RateLimit{Max: max, Window: window} }
}
