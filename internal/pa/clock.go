package pa

import (
	"time"
)

// Timer is a single-slot, re-armable deadline. Arming supersedes any
// previous deadline; cancelling a timer that isn't pending is a no-op.
// *time.Timer already satisfies this interface.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// Clock abstracts time so the routine/backoff/apply timers in routine.go
// can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock is the production Clock, backed by the runtime's monotonic
// timers.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// VirtualClock is a cooperative, single-threaded clock for tests: time only
// advances when Advance is called, and due callbacks run synchronously and
// in deadline order on the calling goroutine.
type VirtualClock struct {
	now    time.Time
	timers []*virtualTimer
}

// NewVirtualClock returns a VirtualClock starting at an arbitrary fixed
// epoch (Date/Now are unavailable to callers that need reproducibility;
// VirtualClock supplies its own fixed starting point instead).
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: time.Unix(0, 0)}
}

type virtualTimer struct {
	c        *VirtualClock
	deadline time.Time
	f        func()
	active   bool
}

func (c *VirtualClock) Now() time.Time { return c.now }

func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &virtualTimer{c: c, deadline: c.now.Add(d), f: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing every timer whose deadline falls
// at or before the new time, in deadline order. A callback that re-arms its
// own timer (or another timer) during firing is itself eligible to fire if
// its new deadline still falls within [now, now+d].
func (c *VirtualClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		due := c.nextDue(end)
		if due == nil {
			c.now = end
			return
		}
		c.now = due.deadline
		due.active = false
		due.f()
	}
}

func (c *VirtualClock) nextDue(end time.Time) *virtualTimer {
	var best *virtualTimer
	for _, t := range c.timers {
		if !t.active || t.deadline.After(end) {
			continue
		}
		if best == nil || t.deadline.Before(best.deadline) {
			best = t
		}
	}
	return best
}

// Pending reports the number of currently-armed virtual timers, for tests
// asserting on debounce behaviour.
func (c *VirtualClock) Pending() int {
	n := 0
	for _, t := range c.timers {
		if t.active {
			n++
		}
	}
	return n
}

func (t *virtualTimer) Reset(d time.Duration) bool {
	was := t.active
	t.deadline = t.c.now.Add(d)
	t.active = true
	return was
}

func (t *virtualTimer) Stop() bool {
	was := t.active
	t.active = false
	return was
}
