// Package task implements a minimal periodic task scheduler, the
// replacement for the cooperative green-thread periodic tasks described in
// spec.md §5 and §9. A task's next run time is computed by a Schedule
// function, which lets "run every fixed interval" (Every) and "run on a
// cron-like cadence" (Cron, backed by robfig/cron) share one driver loop.
package task

import (
	"context"
	"time"
)

// Func is the function run by the scheduler at each tick.
type Func func(context.Context)

// Schedule returns the duration to wait before the next run, or an error.
// A zero duration with a nil error means "never run". An error with a
// positive duration means "this tick failed, but try again after the
// duration"; an error with a zero duration aborts the task permanently.
type Schedule func() (time.Duration, error)

// Every returns a Schedule that fires at a fixed interval, starting
// immediately. An interval of zero disables the task entirely.
func Every(interval time.Duration) Schedule {
	first := true
	return func() (time.Duration, error) {
		if interval <= 0 {
			return 0, nil
		}

		if first {
			first = false
			return time.Nanosecond, nil
		}

		return interval, nil
	}
}

// Start begins running f according to schedule in a background goroutine.
// It returns a stop function (accepting a grace period to wait for an
// in-flight run before giving up) and a reset function that makes the
// scheduler recompute its next run immediately, as if the task had just
// fired.
func Start(f Func, schedule Schedule) (stop func(timeout time.Duration) error, reset func()) {
	ctx, cancel := context.WithCancel(context.Background())
	resetCh := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			interval, err := schedule()
			if interval <= 0 {
				return
			}

			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-resetCh:
				timer.Stop()
				f(ctx)
				continue
			case <-timer.C:
				if err != nil {
					continue
				}

				f(ctx)
			}
		}
	}()

	stop = func(timeout time.Duration) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-time.After(timeout):
			return errTimeout
		}
	}

	reset = func() {
		select {
		case resetCh <- struct{}{}:
		default:
		}
	}

	return stop, reset
}

var errTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "Task still running" }
