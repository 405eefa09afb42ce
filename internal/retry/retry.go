// Package retry implements the bounded exponential backoff used everywhere
// the engine waits for the host to become ready.
package retry

import (
	"math"
	"time"

	"github.com/tilelabel/overlay/internal/host"
)

// Policy describes a backoff progression.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultPolicy matches the surface-detection requirements: start around
// 100ms, double each attempt, cap at 30s, never give up.
var DefaultPolicy = Policy{
	Initial:    100 * time.Millisecond,
	Max:        30 * time.Second,
	Multiplier: 2,
}

// Delay returns the wait before the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.Initial
	}
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.Max) || d < 0 {
		return p.Max
	}
	return time.Duration(d)
}

// Loop is a running retry loop.
type Loop struct {
	sched   host.Scheduler
	policy  Policy
	fn      func() bool
	attempt int
	timer   host.TimerID
	stopped bool
	active  bool
}

// Start schedules fn through the scheduler until it returns true. The first
// attempt runs after the initial delay, not immediately; callers that want
// an immediate first try invoke fn themselves before starting the loop.
func Start(sched host.Scheduler, policy Policy, fn func() bool) *Loop {
	l := &Loop{sched: sched, policy: policy, fn: fn, active: true}
	l.schedule()
	return l
}

func (l *Loop) schedule() {
	l.timer = l.sched.SetTimeout(l.policy.Delay(l.attempt), func() {
		if l.stopped {
			return
		}
		if l.fn() {
			l.active = false
			return
		}
		l.attempt++
		l.schedule()
	})
}

// Stop cancels the loop.
func (l *Loop) Stop() {
	l.stopped = true
	l.active = false
	l.sched.ClearTimeout(l.timer)
}

// Active reports whether the loop is still retrying.
func (l *Loop) Active() bool { return l.active && !l.stopped }
