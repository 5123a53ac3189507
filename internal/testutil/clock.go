package testutil

import (
	"sync"
	"time"
)

// StubClock is a manually driven cv.Clock. With a step set, every Now call
// moves it forward, which makes elapsed-time logic observable in tests.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetStep makes each later Now call advance the clock by d. Zero stops the clock again.
func (c *StubClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}
