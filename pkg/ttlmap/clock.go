package ttlmap

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current time as seconds since an arbitrary monotonic
// epoch. 32-bit wraparound is tolerated by design: every comparison in
// this package against a deadline uses unsigned arithmetic, so callers
// only need to ensure no deadline is ever set more than 2^31 seconds in
// the future.
type Clock interface {
	Now() uint32
}

// SystemClock is a Clock counting whole seconds elapsed since it was
// created by NewSystemClock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a SystemClock whose epoch is the moment of the
// call.
func NewSystemClock() SystemClock {
	return SystemClock{start: time.Now()}
}

func (c SystemClock) Now() uint32 {
	return uint32(time.Since(c.start).Seconds())
}

// ManualClock is a Clock whose value is set explicitly, for deterministic
// tests of TTL expiry.
type ManualClock struct {
	now atomic.Uint32
}

// NewManualClock returns a ManualClock starting at the given time.
func NewManualClock(now uint32) *ManualClock {
	c := &ManualClock{}
	c.now.Store(now)

	return c
}

func (c *ManualClock) Now() uint32 {
	return c.now.Load()
}

// Set moves the clock to an arbitrary time.
func (c *ManualClock) Set(now uint32) {
	c.now.Store(now)
}

// Advance moves the clock forward by delta seconds and returns the new
// time.
func (c *ManualClock) Advance(delta uint32) uint32 {
	return c.now.Add(delta)
}
