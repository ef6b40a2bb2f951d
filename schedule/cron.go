package schedule

import (
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/strandq/strand"
)

// cronParser supports standard 5-field cron expressions and descriptors
// like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// CronFields is the structural split of a 5-field cron expression.
type CronFields struct {
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	DayOfWeek  string
}

// ValidateCron structurally validates a 5-field cron expression and
// returns its fields. It checks field count and splits only; use
// ParseCron for full semantic validation.
func ValidateCron(expr string) (CronFields, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return CronFields{}, strand.Newf(strand.KindOperation,
			"cron expression %q must have 5 fields, got %d", expr, len(fields))
	}
	return CronFields{
		Minute:     fields[0],
		Hour:       fields[1],
		DayOfMonth: fields[2],
		Month:      fields[3],
		DayOfWeek:  fields[4],
	}, nil
}

// ParseCron parses a cron expression (5-field or "@every …" descriptor)
// into a schedule.
func ParseCron(expr string) (cronlib.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, strand.Wrap(strand.KindOperation, "parse cron expression", err)
	}
	return sched, nil
}

// NextOccurrence returns the first activation of the cron expression
// strictly after the given instant.
func NextOccurrence(expr string, after time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// UntilNextOccurrence returns the delay from now until the cron
// expression's next activation.
func UntilNextOccurrence(expr string) (time.Duration, error) {
	now := time.Now()
	next, err := NextOccurrence(expr, now)
	if err != nil {
		return 0, err
	}
	return next.Sub(now), nil
}
