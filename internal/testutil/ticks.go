// Package testutil provides deterministic stand-ins for the time and device
// dependencies of the simulation engine and the link monitor: a manual tick
// source driven by the test, and a scriptable device.
package testutil

import (
	"sync"
	"time"
)

// ManualTicks is a TickSource driven explicitly by the test. Every consumer
// created through Ticks shares the same fan-out: one Tick() call delivers one
// tick to every active consumer.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualTicks struct {
	mu    sync.Mutex
	chans []chan time.Time
}

// NewManualTicks creates a manual tick source with no consumers.
func NewManualTicks() *ManualTicks {
	return &ManualTicks{}
}

// Ticks registers a consumer. The interval is ignored: ticks arrive only
// through Tick(). The returned stop function deregisters the consumer.
func (m *ManualTicks) Ticks(_ time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Buffered so Tick never blocks on a consumer that is between selects.
	ch := make(chan time.Time, 64)
	m.chans = append(m.chans, ch)
	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.chans {
			if c == ch {
				m.chans = append(m.chans[:i], m.chans[i+1:]...)
				return
			}
		}
	}
	return ch, stop
}

// Tick delivers one tick to every active consumer.
func (m *ManualTicks) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, ch := range m.chans {
		select {
		case ch <- now:
		default:
		}
	}
}

// TickN delivers n ticks.
func (m *ManualTicks) TickN(n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

// Consumers reports the number of active consumers. Tests use it to wait for
// a loop to subscribe before ticking.
func (m *ManualTicks) Consumers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chans)
}

// WaitForConsumers polls until at least n consumers are subscribed or the
// timeout elapses. Returns false on timeout.
func (m *ManualTicks) WaitForConsumers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Consumers() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return m.Consumers() >= n
}
