// Package timeutil provides the clock abstraction used by session timers.
// Production code runs on the wall clock; tests drive a ManualClock so that
// auto-save and timeout callbacks fire deterministically.
package timeutil

import (
	"sort"
	"sync"
	"time"
)

// Clock is a source of time and one-shot timers.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// ══════════════════════════════════════════════════════════════════════════════
// REAL CLOCK
// ══════════════════════════════════════════════════════════════════════════════

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// ManualClock is a Clock whose time only moves when Advance or Set is called.
// Due timers run synchronously on the goroutine that advanced the clock.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	id    int
	at    time.Time
	fn    func()
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now:    start,
		timers: make(map[int]*manualTimer),
	}
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{clock: c, id: c.seq, at: c.now.Add(d), fn: f}
	c.timers[t.id] = t
	return t
}

// Stop cancels the timer.
func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

// Advance moves the clock forward by d, firing every timer that becomes due
// in deadline order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) Set(t time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(t)
		if next == nil {
			if t.After(c.now) {
				c.now = t
			}
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.fn()
	}
}

// PendingTimers reports how many timers are armed.
func (c *ManualClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *ManualClock) nextDueLocked(limit time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.at.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Seconds converts a duration to fractional seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// FromSeconds converts fractional seconds to a duration.
func FromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// MaxDuration returns the larger of a and b.
func MaxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
