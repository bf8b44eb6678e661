package sim

import "sync/atomic"

// Clock is a monotonic logical clock for tick ordering.
//
// Every persisted tick across all runs is stamped with a strictly increasing
// seq number from the engine's clock, so the order of writes is explicit in
// observer notifications and audit detail even when several runs interleave.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
