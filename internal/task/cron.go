package task

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cron returns a Schedule driven by a standard five-field cron descriptor,
// for tasks whose cadence an operator configures declaratively (e.g. "run
// the VLAN re-assertion sweep at the top of every hour") rather than as a
// fixed Go duration. The returned Schedule computes the wait until the next
// matching time on every invocation, so it behaves correctly across
// process restarts and DST shifts.
func Cron(spec string) (Schedule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("Invalid cron schedule %q: %w", spec, err)
	}

	return func() (time.Duration, error) {
		now := time.Now()
		next := sched.Next(now)
		if next.IsZero() {
			return 0, nil
		}

		return next.Sub(now), nil
	}, nil
}
