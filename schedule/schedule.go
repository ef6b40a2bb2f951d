// Package schedule provides pure time arithmetic for turning a "when"
// into a delay value, priority conventions, and admission control for
// rate-limited queues.
//
// Time zone and daylight-saving transitions are not handled: all
// wall-clock arithmetic uses the local clock naively.
package schedule

import (
	"time"

	"github.com/strandq/strand/job"
)

// At returns the delay until the given instant, or zero if it has
// already passed.
func At(t time.Time) time.Duration {
	return atFrom(t, time.Now())
}

func atFrom(t, now time.Time) time.Duration {
	d := t.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// After returns the duration unchanged. It exists so call sites read as
// intent: job.WithDelay(schedule.After(5 * time.Minute)).
func After(d time.Duration) time.Duration { return d }

// UntilNextHour returns the delay until the next top of the hour.
func UntilNextHour() time.Duration {
	return untilNextHourFrom(time.Now())
}

func untilNextHourFrom(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

// UntilNextDay returns the delay until the next local midnight.
func UntilNextDay() time.Duration {
	return untilNextDayFrom(time.Now())
}

func untilNextDayFrom(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

// UntilTime returns the delay until the next occurrence of hour:minute
// on the local clock, rolling to tomorrow if that time has already
// passed today.
func UntilTime(hour, minute int) time.Duration {
	return untilTimeFrom(hour, minute, time.Now())
}

func untilTimeFrom(hour, minute int, now time.Time) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(now)
}

// Priority conventions. Bounds are not enforced; these are fixed values
// callers agree on, not a scale.
const (
	PriorityHigh = 10
	PriorityLow  = -10
)

// HighPriority sets the conventional high priority (+10) on job options.
func HighPriority() job.Option { return job.WithPriority(PriorityHigh) }

// LowPriority sets the conventional low priority (-10) on job options.
func LowPriority() job.Option { return job.WithPriority(PriorityLow) }

// CanAdmit reports whether a new job may become active under the given
// rate limit: it counts active jobs started within the rolling window
// and admits while that count is below limit.Max.
//
// This is an O(n) point-in-time scan over the active set with no
// atomicity guarantee against a concurrent equivalent check; acceptable
// while the active set is small. Use Admitter for a token-bucket
// alternative that doesn't scan.
func CanAdmit(active []*job.Job, limit job.RateLimit) bool {
	return canAdmitAt(active, limit, time.Now().UTC())
}

func canAdmitAt(active []*job.Job, limit job.RateLimit, now time.Time) bool {
	if limit.Max <= 0 {
		return true
	}
	cutoff := now.Add(-limit.Window)
	count := 0
	for _, j := range active {
		if j.Status != job.StatusActive || j.StartedAt == nil {
			continue
		}
		if j.StartedAt.After(cutoff) {
			count++
		}
	}
	return count < limit.Max
}
