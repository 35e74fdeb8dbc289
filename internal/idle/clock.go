// Package idle holds the shared idle clock written by the input monitor and
// read by the trigger loop.
package idle

import (
	"sync"
	"time"
)

// Clock tracks the time of the last qualifying input event and whether input
// is currently being suppressed. All access goes through one mutex so the
// suppression check and the clock write happen as a unit.
type Clock struct {
	mu           sync.Mutex
	now          func() time.Time
	lastActivity time.Time
	suppressed   bool
}

// NewClock returns a clock stamped with the current time.
func NewClock() *Clock {
	return NewClockWithNow(time.Now)
}

// NewClockWithNow returns a clock that reads time from nowFn.
func NewClockWithNow(nowFn func() time.Time) *Clock {
	return &Clock{
		now:          nowFn,
		lastActivity: nowFn(),
	}
}

// ActivityObserved stamps the clock unless suppression is active.
func (c *Clock) ActivityObserved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suppressed {
		return
	}
	c.stamp()
}

// Reset stamps the clock regardless of suppression. The trigger loop calls it
// after an injection so the next idle window starts from now.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.stamp()
	c.mu.Unlock()
}

// stamp moves lastActivity forward, never backward. Caller holds c.mu.
func (c *Clock) stamp() {
	if t := c.now(); t.After(c.lastActivity) {
		c.lastActivity = t
	}
}

// Idle returns the time elapsed since the last stamp.
func (c *Clock) Idle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.now().Sub(c.lastActivity)
	if d < 0 {
		return 0
	}
	return d
}

// LastActivity returns the last stamp.
func (c *Clock) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Suppressed reports whether input is currently ignored.
func (c *Clock) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}

// Suppress runs fn with suppression enabled. The flag is cleared on every
// return path, including a panic inside fn.
func (c *Clock) Suppress(fn func() error) error {
	c.setSuppressed(true)
	defer c.setSuppressed(false)
	return fn()
}

func (c *Clock) setSuppressed(v bool) {
	c.mu.Lock()
	c.suppressed = v
	c.mu.Unlock()
}
