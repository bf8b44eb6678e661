// Package plc owns the equipment links: one connection handle per production
// line, a heartbeat poller inferring liveness from a status register, and an
// action watch poller tracking dispatched operations to completion.
//
// Concurrency model mirrors the simulation engine: each poller is one
// goroutine owning its ticker, cancelled cooperatively via context at the
// top of every poll. Each line's counters (reconnect misses included) live
// on that line's link; nothing is shared across lines.
package plc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LinkState is the connection state of one line's equipment link.
type LinkState string

const (
	StateDisconnected LinkState = "disconnected"
	StateConnecting   LinkState = "connecting"
	StateConnected    LinkState = "connected"
	StateFaulted      LinkState = "faulted"
)

// Registers names the device registers the monitor polls and writes.
type Registers struct {
	// Heartbeat is read by the liveness poller; HeartbeatLive is the value
	// that means "alive".
	Heartbeat     string
	HeartbeatLive int
	// Mode and Count are written to dispatch an action.
	Mode  string
	Count string
	// Done is read by the action watch poller; 1 means finished.
	Done string
}

// DefaultRegisters returns the register map of the line controllers this
// tool was built against.
func DefaultRegisters() Registers {
	return Registers{
		Heartbeat:     "SM400",
		HeartbeatLive: 1,
		Mode:          "D200",
		Count:         "D210",
		Done:          "M8164",
	}
}

// LineConfig configures one production line's link.
type LineConfig struct {
	ID            string         // e.g. "line-1"
	Station       int            // logical station number on the device bus
	Registers     Registers
	PollInterval  time.Duration  // heartbeat and watch poll period
	MissTolerance int            // consecutive missed heartbeats before teardown
	Actions       map[string]int // action name -> mode register value
}

// Listener receives link events. Calls come from poller goroutines and must
// return promptly.
type Listener interface {
	// LinkStateChanged reports a connection state change with a
	// human-readable reason. Faults are surfaced here exactly once.
	LinkStateChanged(line string, state LinkState, reason string)
	// ActionFinished reports a dispatched action reaching completion.
	ActionFinished(line, action string, count int)
}

// NopListener discards all events.
type NopListener struct{}

func (NopListener) LinkStateChanged(string, LinkState, string) {}
func (NopListener) ActionFinished(string, string, int)         {}

// Monitor errors.
var (
	ErrUnknownLine   = errors.New("unknown production line")
	ErrNotConnected  = errors.New("line is not connected")
	ErrBusy          = errors.New("an action is already running on this line")
	ErrUnknownAction = errors.New("unknown action")
)

// TickSource produces poll signals; see the sim package for the same
// pattern. Tests substitute a manual source.
type TickSource interface {
	Ticks(interval time.Duration) (<-chan time.Time, func())
}

type realTicks struct{}

func (realTicks) Ticks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// link is the per-line state. All fields are guarded by mu; poller
// goroutines and monitor methods never touch another line's link.
type link struct {
	cfg LineConfig
	dev Device

	mu        sync.Mutex
	state     LinkState
	misses    int    // consecutive missed heartbeats, per line
	heartbeat int    // last value read from the heartbeat register
	action    string // currently dispatched action, "" if idle
	count     int

	hbCancel    context.CancelFunc
	hbDone      chan struct{}
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	// settling is non-nil while a teardown is in flight and closes once the
	// link reaches its final state. Connect waits on it so a reconnect cannot
	// observe the stale Connected state of a link that is going down.
	settling chan struct{}
}

// LinkStatus is a read-only snapshot of one line's link.
type LinkStatus struct {
	Line          string
	State         LinkState
	LastHeartbeat int
	Misses        int
	Action        string // empty if idle
}

// ActionResult reports a finished line action.
type ActionResult struct {
	Line   string
	Action string
	Count  int
}

// Monitor owns the equipment links for the configured set of lines.
type Monitor struct {
	listener Listener
	ticks    TickSource

	mu    sync.Mutex
	links map[string]*link
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTickSource substitutes the poll source (tests).
func WithTickSource(ts TickSource) Option {
	return func(m *Monitor) { m.ticks = ts }
}

// WithListener registers the event listener.
func WithListener(l Listener) Option {
	return func(m *Monitor) { m.listener = l }
}

// New builds a Monitor for the given lines. devices maps line ID to its
// handle; every configured line needs one.
func New(lines []LineConfig, devices map[string]Device, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		listener: NopListener{},
		ticks:    realTicks{},
		links:    make(map[string]*link, len(lines)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, cfg := range lines {
		dev, ok := devices[cfg.ID]
		if !ok {
			return nil, fmt.Errorf("no device for line %s", cfg.ID)
		}
		if cfg.PollInterval <= 0 {
			cfg.PollInterval = time.Second
		}
		if cfg.MissTolerance <= 0 {
			cfg.MissTolerance = 5
		}
		m.links[cfg.ID] = &link{cfg: cfg, dev: dev, state: StateDisconnected}
	}
	return m, nil
}

// Connect opens the device handle for a line and starts heartbeat polling.
func (m *Monitor) Connect(line string) error {
	l, err := m.link(line)
	if err != nil {
		return err
	}

	l.mu.Lock()
	for l.settling != nil {
		settled := l.settling
		l.mu.Unlock()
		<-settled
		l.mu.Lock()
	}
	if l.state == StateConnected || l.state == StateConnecting {
		l.mu.Unlock()
		return nil // already up
	}
	l.state = StateConnecting
	l.mu.Unlock()
	m.listener.LinkStateChanged(line, StateConnecting, "opening device")

	if code := l.dev.Open(); code != 0 {
		l.mu.Lock()
		l.state = StateDisconnected
		l.mu.Unlock()
		err := &DeviceError{Line: line, Op: "open", Code: code}
		m.listener.LinkStateChanged(line, StateDisconnected, err.Error())
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.state = StateConnected
	l.misses = 0
	l.hbCancel = cancel
	l.hbDone = make(chan struct{})
	l.mu.Unlock()

	m.listener.LinkStateChanged(line, StateConnected, "heartbeat polling started")
	go m.heartbeatLoop(ctx, l)
	return nil
}

// Disconnect stops both pollers and releases the device handle. Release is
// best-effort: close errors are swallowed since the link is being torn down
// regardless.
func (m *Monitor) Disconnect(line string) error {
	l, err := m.link(line)
	if err != nil {
		return err
	}
	m.teardown(l, StateDisconnected, "disconnected by operator")
	return nil
}

// ExecuteAction dispatches an action on a connected line: writes the mode
// and count registers, then starts the watch poller on the done register.
// Rejected without touching any register unless the line is Connected and
// idle.
func (m *Monitor) ExecuteAction(line, action string, count int) error {
	l, err := m.link(line)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.state != StateConnected {
		l.mu.Unlock()
		return fmt.Errorf("execute %s on line %s: %w", action, line, ErrNotConnected)
	}
	if l.action != "" {
		running := l.action
		l.mu.Unlock()
		return fmt.Errorf("execute %s on line %s (%s running): %w", action, line, running, ErrBusy)
	}
	mode, ok := l.cfg.Actions[action]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("execute %q on line %s: %w", action, line, ErrUnknownAction)
	}
	l.mu.Unlock()

	if code := l.dev.WriteRegister(l.cfg.Registers.Mode, mode); code != 0 {
		return &DeviceError{Line: line, Op: "write", Register: l.cfg.Registers.Mode, Code: code}
	}
	if code := l.dev.WriteRegister(l.cfg.Registers.Count, count); code != 0 {
		return &DeviceError{Line: line, Op: "write", Register: l.cfg.Registers.Count, Code: code}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.action = action
	l.count = count
	l.watchCancel = cancel
	l.watchDone = make(chan struct{})
	l.mu.Unlock()

	slog.Info("action dispatched", "line", line, "action", action, "count", count)
	go m.watchLoop(ctx, l)
	return nil
}

// Status snapshots one line's link.
func (m *Monitor) Status(line string) (LinkStatus, error) {
	l, err := m.link(line)
	if err != nil {
		return LinkStatus{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return LinkStatus{
		Line:          l.cfg.ID,
		State:         l.state,
		LastHeartbeat: l.heartbeat,
		Misses:        l.misses,
		Action:        l.action,
	}, nil
}

// Lines lists the configured line IDs. Order is not defined; callers sort
// as needed.
func (m *Monitor) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.links))
	for id := range m.links {
		out = append(out, id)
	}
	return out
}

// Shutdown tears down every link. Used on process exit.
func (m *Monitor) Shutdown() {
	for _, id := range m.Lines() {
		if l, err := m.link(id); err == nil {
			m.teardown(l, StateDisconnected, "shutting down")
		}
	}
}

func (m *Monitor) link(line string) (*link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[line]
	if !ok {
		return nil, fmt.Errorf("line %q: %w", line, ErrUnknownLine)
	}
	return l, nil
}

// heartbeatLoop polls the heartbeat register. The expected value resets the
// per-line miss counter; anything else increments it, and exceeding the
// tolerance tears the link down. A non-zero read code is a device fault:
// immediate teardown to Faulted, surfaced once.
func (m *Monitor) heartbeatLoop(ctx context.Context, l *link) {
	defer close(l.hbDone)

	ticks, stop := m.ticks.Ticks(l.cfg.PollInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
		if ctx.Err() != nil {
			return
		}

		value, code := l.dev.ReadRegister(l.cfg.Registers.Heartbeat)
		if code != 0 {
			err := &DeviceError{Line: l.cfg.ID, Op: "read", Register: l.cfg.Registers.Heartbeat, Code: code}
			go m.teardown(l, StateFaulted, err.Error())
			return
		}

		l.mu.Lock()
		l.heartbeat = value
		if value == l.cfg.Registers.HeartbeatLive {
			l.misses = 0
			l.mu.Unlock()
			continue
		}
		l.misses++
		misses := l.misses
		l.mu.Unlock()

		if misses > l.cfg.MissTolerance {
			reason := fmt.Sprintf("heartbeat lost (%d consecutive misses)", misses)
			go m.teardown(l, StateDisconnected, reason)
			return
		}
	}
}

// watchLoop polls the done register for the dispatched action. On done it
// clears the mode and count registers and reports completion; on a device
// fault it stops watching and surfaces the fault once.
func (m *Monitor) watchLoop(ctx context.Context, l *link) {
	defer close(l.watchDone)

	ticks, stop := m.ticks.Ticks(l.cfg.PollInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
		if ctx.Err() != nil {
			return
		}

		value, code := l.dev.ReadRegister(l.cfg.Registers.Done)
		if code != 0 {
			err := &DeviceError{Line: l.cfg.ID, Op: "read", Register: l.cfg.Registers.Done, Code: code}
			slog.Warn("action watch failed", "line", l.cfg.ID, "error", err)
			l.mu.Lock()
			action := l.action
			l.action = ""
			l.count = 0
			l.watchCancel = nil
			l.mu.Unlock()
			m.listener.LinkStateChanged(l.cfg.ID, StateConnected,
				fmt.Sprintf("watch for %s aborted: %v", action, err))
			return
		}
		if value != 1 {
			continue
		}

		// Done: clear the command registers. Best-effort; the action itself
		// has finished on the equipment side.
		if code := l.dev.WriteRegister(l.cfg.Registers.Mode, 0); code != 0 {
			slog.Warn("failed to clear mode register", "line", l.cfg.ID, "code", code)
		}
		if code := l.dev.WriteRegister(l.cfg.Registers.Count, 0); code != 0 {
			slog.Warn("failed to clear count register", "line", l.cfg.ID, "code", code)
		}

		l.mu.Lock()
		action, count := l.action, l.count
		l.action = ""
		l.count = 0
		l.watchCancel = nil
		l.mu.Unlock()

		m.listener.ActionFinished(l.cfg.ID, action, count)
		return
	}
}

// teardown stops both pollers, releases the handle and settles the link in
// its final state, notifying the listener exactly once.
func (m *Monitor) teardown(l *link, final LinkState, reason string) {
	l.mu.Lock()
	if l.settling != nil {
		// Another teardown owns this link; wait for it to settle.
		settled := l.settling
		l.mu.Unlock()
		<-settled
		return
	}
	if l.state == StateDisconnected && final == StateDisconnected {
		l.mu.Unlock()
		return
	}
	settled := make(chan struct{})
	l.settling = settled
	hbCancel, hbDone := l.hbCancel, l.hbDone
	watchCancel, watchDone := l.watchCancel, l.watchDone
	l.hbCancel, l.watchCancel = nil, nil
	l.mu.Unlock()

	if hbCancel != nil {
		hbCancel()
	}
	if watchCancel != nil {
		watchCancel()
	}
	// Wait for pollers so no register reads happen after teardown. A poller
	// calling teardown has already returned from its loop body; its done
	// channel closes right after, so waiting here cannot deadlock (teardown
	// runs on a fresh goroutine from inside pollers).
	if hbDone != nil {
		<-hbDone
	}
	if watchDone != nil {
		<-watchDone
	}

	// Best-effort release; the link is going away regardless.
	if code := l.dev.Close(); code != 0 {
		slog.Debug("device close failed", "line", l.cfg.ID, "code", code)
	}

	l.mu.Lock()
	l.state = final
	l.action = ""
	l.count = 0
	l.misses = 0
	l.hbDone, l.watchDone = nil, nil
	l.settling = nil
	l.mu.Unlock()

	// Notify before releasing waiters so a reconnect's events follow the
	// teardown's final event.
	m.listener.LinkStateChanged(l.cfg.ID, final, reason)
	close(settled)
}
