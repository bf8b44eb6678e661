package plc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suk-kr/shopfloor/internal/testutil"
)

const waitTimeout = 5 * time.Second

type stateEvent struct {
	line   string
	state  LinkState
	reason string
}

// chanListener forwards monitor events to channels so tests can block on
// them.
type chanListener struct {
	states   chan stateEvent
	finished chan ActionResult
}

func newChanListener() *chanListener {
	return &chanListener{
		states:   make(chan stateEvent, 16),
		finished: make(chan ActionResult, 16),
	}
}

func (l *chanListener) LinkStateChanged(line string, state LinkState, reason string) {
	l.states <- stateEvent{line: line, state: state, reason: reason}
}

func (l *chanListener) ActionFinished(line, action string, count int) {
	l.finished <- ActionResult{Line: line, Action: action, Count: count}
}

// waitState drains state events until the wanted state arrives.
func (l *chanListener) waitState(t *testing.T, want LinkState) stateEvent {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-l.states:
			if ev.state == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s state event in time", want)
		}
	}
}

func (l *chanListener) waitFinished(t *testing.T) ActionResult {
	t.Helper()
	select {
	case res := <-l.finished:
		return res
	case <-time.After(waitTimeout):
		t.Fatal("no action-finished event in time")
		return ActionResult{}
	}
}

type monitorFixture struct {
	monitor  *Monitor
	device   *testutil.ScriptedDevice
	ticks    *testutil.ManualTicks
	listener *chanListener
}

func newMonitorFixture(t *testing.T, tolerance int) *monitorFixture {
	t.Helper()
	dev := testutil.NewScriptedDevice()
	ticks := testutil.NewManualTicks()
	listener := newChanListener()

	mon, err := New([]LineConfig{{
		ID:            "line-1",
		Station:       1,
		Registers:     DefaultRegisters(),
		PollInterval:  time.Second,
		MissTolerance: tolerance,
		Actions:       map[string]int{"op-1": 1, "op-2": 2},
	}}, map[string]Device{"line-1": dev},
		WithTickSource(ticks), WithListener(listener))
	require.NoError(t, err)
	t.Cleanup(mon.Shutdown)

	return &monitorFixture{monitor: mon, device: dev, ticks: ticks, listener: listener}
}

// liveHeartbeat scripts the heartbeat register to always read alive.
func (f *monitorFixture) liveHeartbeat() {
	f.device.Script("SM400", testutil.ReadResult{Value: 1})
}

func TestMonitor_Connect(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.liveHeartbeat()

	require.NoError(t, f.monitor.Connect("line-1"))
	f.listener.waitState(t, StateConnecting)
	f.listener.waitState(t, StateConnected)
	assert.True(t, f.device.IsOpen())

	status, err := f.monitor.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, status.State)
	assert.Empty(t, status.Action)

	// Second connect is a no-op.
	require.NoError(t, f.monitor.Connect("line-1"))
}

func TestMonitor_ConnectOpenFailure(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.device.OpenCode = 71

	err := f.monitor.Connect("line-1")
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 71, devErr.Code)
	assert.Equal(t, "open", devErr.Op)

	status, err := f.monitor.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, status.State)
}

func TestMonitor_UnknownLine(t *testing.T) {
	f := newMonitorFixture(t, 5)

	err := f.monitor.Connect("line-9")
	assert.ErrorIs(t, err, ErrUnknownLine)
	_, err = f.monitor.Status("line-9")
	assert.ErrorIs(t, err, ErrUnknownLine)
}

func TestMonitor_HeartbeatRecoversWithinTolerance(t *testing.T) {
	f := newMonitorFixture(t, 3)
	// Two misses, then alive again: the miss counter must reset.
	f.device.Script("SM400",
		testutil.ReadResult{Value: 0},
		testutil.ReadResult{Value: 0},
		testutil.ReadResult{Value: 1},
	)

	require.NoError(t, f.monitor.Connect("line-1"))
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.TickN(3)
	require.Eventually(t, func() bool {
		status, err := f.monitor.Status("line-1")
		return err == nil && status.LastHeartbeat == 1
	}, waitTimeout, time.Millisecond)

	status, err := f.monitor.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, 0, status.Misses)
}

func TestMonitor_HeartbeatLossTearsDownLink(t *testing.T) {
	f := newMonitorFixture(t, 3)
	f.device.Script("SM400", testutil.ReadResult{Value: 0})

	require.NoError(t, f.monitor.Connect("line-1"))
	f.listener.waitState(t, StateConnected)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	// tolerance misses are survived; one more tears the link down.
	f.ticks.TickN(4)
	ev := f.listener.waitState(t, StateDisconnected)
	assert.Contains(t, ev.reason, "heartbeat lost (4 consecutive misses)")

	require.Eventually(t, func() bool { return !f.device.IsOpen() }, waitTimeout, time.Millisecond)
	status, err := f.monitor.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, status.State)

	// The poller is gone: one read per delivered tick, and further ticks
	// reach no consumer, so no register read happens after teardown.
	reads := f.device.ReadCount("SM400")
	assert.Equal(t, 4, reads)
	f.ticks.TickN(2)
	assert.Equal(t, reads, f.device.ReadCount("SM400"))
}

func TestMonitor_HeartbeatReadFaultFaultsLink(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.device.Script("SM400", testutil.ReadResult{Value: 0, Code: 102})

	require.NoError(t, f.monitor.Connect("line-1"))
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.Tick()
	ev := f.listener.waitState(t, StateFaulted)
	assert.Contains(t, ev.reason, "device read SM400 failed")

	status, err := f.monitor.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, StateFaulted, status.State)
}

func TestMonitor_ExecuteAction(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.liveHeartbeat()
	// Not done for two polls, then done.
	f.device.Script("M8164",
		testutil.ReadResult{Value: 0},
		testutil.ReadResult{Value: 0},
		testutil.ReadResult{Value: 1},
	)

	require.NoError(t, f.monitor.Connect("line-1"))
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	require.NoError(t, f.monitor.ExecuteAction("line-1", "op-2", 50))
	require.True(t, f.ticks.WaitForConsumers(2, waitTimeout))

	status, err := f.monitor.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, "op-2", status.Action)

	f.ticks.TickN(3)
	res := f.listener.waitFinished(t)
	assert.Equal(t, ActionResult{Line: "line-1", Action: "op-2", Count: 50}, res)

	// Dispatch wrote mode and count; completion cleared both.
	assert.Equal(t, []testutil.Write{
		{Register: "D200", Value: 2},
		{Register: "D210", Value: 50},
		{Register: "D200", Value: 0},
		{Register: "D210", Value: 0},
	}, f.device.Writes())

	require.Eventually(t, func() bool {
		status, err := f.monitor.Status("line-1")
		return err == nil && status.Action == ""
	}, waitTimeout, time.Millisecond)
}

func TestMonitor_ActionRequiresConnection(t *testing.T) {
	f := newMonitorFixture(t, 5)

	err := f.monitor.ExecuteAction("line-1", "op-1", 10)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, f.device.Writes())
}

func TestMonitor_ActionWhileBusy(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.liveHeartbeat()
	f.device.Script("M8164", testutil.ReadResult{Value: 0}) // never done

	require.NoError(t, f.monitor.Connect("line-1"))
	require.NoError(t, f.monitor.ExecuteAction("line-1", "op-1", 10))

	err := f.monitor.ExecuteAction("line-1", "op-2", 20)
	assert.ErrorIs(t, err, ErrBusy)

	// Only the first action's registers were written.
	assert.Equal(t, []testutil.Write{
		{Register: "D200", Value: 1},
		{Register: "D210", Value: 10},
	}, f.device.Writes())
}

func TestMonitor_UnknownAction(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.liveHeartbeat()
	require.NoError(t, f.monitor.Connect("line-1"))

	err := f.monitor.ExecuteAction("line-1", "op-99", 10)
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Empty(t, f.device.Writes())
}

// gatedCloseDevice blocks Close until released, holding a teardown open in
// its settling window.
type gatedCloseDevice struct {
	*testutil.ScriptedDevice
	closing chan struct{} // closed when Close is first entered
	release chan struct{}
	once    sync.Once
}

func (d *gatedCloseDevice) Close() int {
	d.once.Do(func() { close(d.closing) })
	<-d.release
	return d.ScriptedDevice.Close()
}

func TestMonitor_ConnectDuringTeardownReconnects(t *testing.T) {
	dev := &gatedCloseDevice{
		ScriptedDevice: testutil.NewScriptedDevice(),
		closing:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	dev.Script("SM400", testutil.ReadResult{Value: 0})
	ticks := testutil.NewManualTicks()
	listener := newChanListener()

	mon, err := New([]LineConfig{{
		ID:            "line-1",
		Station:       1,
		Registers:     DefaultRegisters(),
		PollInterval:  time.Second,
		MissTolerance: 1,
		Actions:       map[string]int{"op-1": 1},
	}}, map[string]Device{"line-1": dev},
		WithTickSource(ticks), WithListener(listener))
	require.NoError(t, err)

	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(dev.release) }) }
	t.Cleanup(mon.Shutdown)
	t.Cleanup(release)

	require.NoError(t, mon.Connect("line-1"))
	listener.waitState(t, StateConnected)
	require.True(t, ticks.WaitForConsumers(1, waitTimeout))

	// Trip the heartbeat and hold the teardown open at the device close.
	ticks.TickN(2)
	select {
	case <-dev.closing:
	case <-time.After(waitTimeout):
		t.Fatal("teardown never reached the device close")
	}

	// A reconnect racing the teardown must wait for it to settle; treating
	// the dying link as already up would leave the line down with the
	// operator believing it reconnected.
	connected := make(chan error, 1)
	go func() { connected <- mon.Connect("line-1") }()
	select {
	case err := <-connected:
		t.Fatalf("connect returned before teardown settled: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	release()
	ev := listener.waitState(t, StateDisconnected)
	assert.Contains(t, ev.reason, "heartbeat lost")

	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("connect did not finish after teardown settled")
	}
	listener.waitState(t, StateConnected)

	status, err := mon.Status("line-1")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, status.State)
}

func TestMonitor_Disconnect(t *testing.T) {
	f := newMonitorFixture(t, 5)
	f.liveHeartbeat()

	require.NoError(t, f.monitor.Connect("line-1"))
	f.listener.waitState(t, StateConnected)

	require.NoError(t, f.monitor.Disconnect("line-1"))
	ev := f.listener.waitState(t, StateDisconnected)
	assert.Contains(t, ev.reason, "disconnected by operator")
	assert.False(t, f.device.IsOpen())

	// Disconnecting an already-down link is a no-op.
	require.NoError(t, f.monitor.Disconnect("line-1"))
}

func TestNew_RequiresDevicePerLine(t *testing.T) {
	_, err := New([]LineConfig{{ID: "line-1", Registers: DefaultRegisters()}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device for line")
}
