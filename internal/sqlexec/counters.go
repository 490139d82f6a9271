package sqlexec

import "sync/atomic"

// Counters tallies statement successes and failures for one run. It is
// passed explicitly through the call chain so runs and tests never share
// state.
type Counters struct {
	success atomic.Int64
	failure atomic.Int64
}

func (c *Counters) RecordSuccess() { c.success.Add(1) }
func (c *Counters) RecordFailure() { c.failure.Add(1) }

// Snapshot returns the current tallies.
func (c *Counters) Snapshot() (success, failure int64) {
	return c.success.Load(), c.failure.Load()
}

// Reset zeroes both tallies.
func (c *Counters) Reset() {
	c.success.Store(0)
	c.failure.Store(0)
}
