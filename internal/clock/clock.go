// Package clock abstracts wall-clock time so prayer timers and poll ticks can
// be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by the schedule cache and the azan timers.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc calls f in its own goroutine once d has elapsed.
	// The returned Timer cancels the call.
	AfterFunc(d time.Duration, f func()) Timer

	// Until returns the duration until t
	Until(t time.Time) time.Duration
}

// Timer is a pending AfterFunc call
type Timer interface {
	// Stop prevents the Timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// RealClock implements Clock using the time package
type RealClock struct{}

// NewRealClock creates a new RealClock instance
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc waits for the duration to elapse and then calls f
func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Until returns the duration until t
func (c *RealClock) Until(t time.Time) time.Duration {
	return time.Until(t)
}

// MockClock is a manually advanced Clock. Timers fire synchronously from
// Advance/Set in deadline order.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

type mockTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
}

// NewMockClock creates a new MockClock starting at the given time
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

// Now returns the mock current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Until returns the duration from the mock current time to t
func (c *MockClock) Until(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.Sub(c.current)
}

// AfterFunc schedules f to be called once the mock time reaches now+d
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &mockTimer{deadline: c.current.Add(d), f: f}
	c.timers = append(c.timers, t)
	return &mockHandle{clock: c, timer: t}
}

// Pending returns the deadlines of timers that have not fired or been stopped
func (c *MockClock) Pending() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []time.Time
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t.deadline)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Advance moves the mock clock forward by d and fires expired timers
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due, remaining []*mockTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.deadline.After(now):
			t.stopped = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	// Fire outside the lock so callbacks may schedule new timers
	for _, t := range due {
		t.f()
	}
}

// Set jumps the clock to t. Moving forward fires expired timers.
func (c *MockClock) Set(t time.Time) {
	now := c.Now()
	if t.After(now) {
		c.Advance(t.Sub(now))
		return
	}
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

type mockHandle struct {
	clock *MockClock
	timer *mockTimer
}

// Stop prevents the timer from firing
func (h *mockHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()

	wasActive := !h.timer.stopped
	h.timer.stopped = true
	return wasActive
}
