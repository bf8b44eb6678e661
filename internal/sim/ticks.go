package sim

import "time"

// TickSource produces the periodic signal that drives a run loop. The
// production implementation wraps time.Ticker; tests substitute a manual
// source and drive ticks explicitly.
type TickSource interface {
	// Ticks returns a channel delivering tick signals at the given interval
	// and a stop function releasing the underlying resources.
	Ticks(interval time.Duration) (<-chan time.Time, func())
}

// realTicks is the wall-clock tick source.
type realTicks struct{}

func (realTicks) Ticks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}
