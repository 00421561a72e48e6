// Package rate implements the blocking sleep primitive that every timed
// wait in this core funnels through, so that a process-wide shutdown wakes
// every sleeper, not just ones that happen to be polling an interrupt flag.
package rate

import (
	"time"

	xrate "golang.org/x/time/rate"

	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// SleepFor blocks for d or until station is shut down, whichever comes
// first. It returns true if the full duration elapsed, false if woken by
// shutdown. A spurious wake (the select firing without either channel
// being truly ready, which cannot happen with time.Timer/guard condition
// channels but is guarded anyway for clarity) recomputes the remaining
// time and resumes the wait.
func SleepFor(station *shutdown.Station, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return true
		case <-station.SleepConditionHandle().Wait():
			timer.Stop()
			return false
		}
	}
}

// Rate paces repeated work at a fixed frequency. It delegates the "when is
// the next tick due" bookkeeping to a golang.org/x/time/rate.Limiter token
// bucket (burst 1) rather than hand-rolling interval arithmetic, and sleeps
// the delay the limiter reports via SleepFor so a tick wait is
// interruptible by shutdown exactly like any other sleeper.
type Rate struct {
	station *shutdown.Station
	limiter *xrate.Limiter
}

// New builds a Rate that fires at most once per period.
func New(station *shutdown.Station, period time.Duration) *Rate {
	if period <= 0 {
		period = time.Millisecond
	}
	return &Rate{
		station: station,
		limiter: xrate.NewLimiter(xrate.Every(period), 1),
	}
}

// Sleep blocks until the limiter grants the next token or the station
// shuts down, returning the same semantics as SleepFor.
func (r *Rate) Sleep() bool {
	res := r.limiter.Reserve()
	if !res.OK() {
		return true
	}
	delay := res.Delay()
	if delay <= 0 {
		return true
	}
	if !SleepFor(r.station, delay) {
		res.Cancel()
		return false
	}
	return true
}
