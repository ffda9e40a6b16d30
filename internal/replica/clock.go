package replica

import (
	"sync/atomic"
	"time"
)

// Clock is a hybrid logical clock in unix milliseconds.
//
// Next never returns a value at or below one it returned or observed before,
// so a device's events keep their append order under the timestamp comparator
// and sort after every event the device has merged.
type Clock struct {
	now  func() time.Time
	last atomic.Int64
}

// NewClock builds a clock reading wall time from now; nil means time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns max(wall, last+1) and records it.
func (c *Clock) Next() int64 {
	for {
		last := c.last.Load()
		next := max(c.now().UnixMilli(), last+1)
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Observe advances the clock past a timestamp seen on another device.
func (c *Clock) Observe(timestamp int64) {
	for {
		last := c.last.Load()
		if timestamp <= last || c.last.CompareAndSwap(last, timestamp) {
			return
		}
	}
}
