package schedule

import (
	"sync"

	"golang.org/x/time/rate"
)

// AdmitConfig defines per-queue admission behaviour.
type AdmitConfig struct {
	// Queue is the queue identifier.
	Queue string

	// MaxConcurrency limits how many jobs from this queue may be active
	// simultaneously. Zero means no concurrency limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained admissions per second.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// queueState tracks runtime admission state for a single queue.
type queueState struct {
	config  AdmitConfig
	limiter *rate.Limiter
	active  int
}

// Admitter controls per-queue rate limiting and concurrency with a
// token bucket, complementing the point-in-time CanAdmit scan. It is
// safe for concurrent use.
type Admitter struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewAdmitter creates an Admitter with the given queue configurations.
// Queues not listed have no limits.
func NewAdmitter(configs ...AdmitConfig) *Admitter {
	a := &Admitter{queues: make(map[string]*queueState, len(configs))}
	for _, cfg := range configs {
		a.queues[cfg.Queue] = newQueueState(cfg)
	}
	return a
}

func newQueueState(cfg AdmitConfig) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Acquire checks rate and concurrency limits for the queue. If admission
// is allowed it increments the active counter and returns true. The
// caller MUST call Release when the job completes.
func (a *Admitter) Acquire(queue string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	qs := a.queues[queue]
	if qs == nil {
		return true
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	qs.active++
	return true
}

// Release decrements the active count for the queue.
func (a *Admitter) Release(queue string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if qs := a.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetConfig dynamically updates (or creates) a queue configuration,
// preserving the current active count.
func (a *Admitter) SetConfig(cfg AdmitConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	qs := newQueueState(cfg)
	if existing := a.queues[cfg.Queue]; existing != nil {
		qs.active = existing.active
	}
	a.queues[cfg.Queue] = qs
}

// ActiveCount returns the current number of admitted jobs for a queue.
func (a *Admitter) ActiveCount(queue string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if qs := a.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
