package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manual clock. After advances the clock by the requested
// duration and fires immediately, so poll loops run without sleeping.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	hold   bool
	onWait func(d time.Duration)
}

// NewFakeClock starts a clock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Hold makes subsequent After calls return channels that never fire.
func (c *FakeClock) Hold() {
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()
}

// OnWait registers a hook invoked every time After is called.
func (c *FakeClock) OnWait(fn func(d time.Duration)) {
	c.mu.Lock()
	c.onWait = fn
	c.mu.Unlock()
}

// After records the wait and returns a channel carrying the advanced time.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waits = append(c.waits, d)
	hook := c.onWait
	if c.hold {
		c.mu.Unlock()
		if hook != nil {
			hook(d)
		}
		return ch
	}
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	ch <- now
	return ch
}

// Waits returns every duration passed to After.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}
