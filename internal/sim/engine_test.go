package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suk-kr/shopfloor/internal/fulfillment"
	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/store"
	"github.com/suk-kr/shopfloor/internal/testutil"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

const waitTimeout = 5 * time.Second

// recordObserver collects tick and run-end notifications for assertions.
type recordObserver struct {
	mu    sync.Mutex
	seqs  []int64
	ended []model.WorkOrderStatus
	errs  []error
}

func (o *recordObserver) ProductionUpdated(_ string, _, _ int, seq int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seqs = append(o.seqs, seq)
}

func (o *recordObserver) tickSeqs() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int64(nil), o.seqs...)
}

func (o *recordObserver) RunEnded(_ string, status model.WorkOrderStatus, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, status)
	o.errs = append(o.errs, err)
}

func (o *recordObserver) last() (model.WorkOrderStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.ended) == 0 {
		return "", nil
	}
	return o.ended[len(o.ended)-1], o.errs[len(o.errs)-1]
}

type engineFixture struct {
	store  *store.Store
	engine *Engine
	ticks  *testutil.ManualTicks
	obs    *recordObserver
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	st := testutil.OpenStore(t)
	decider := &testutil.ScriptedDecider{}
	coord := fulfillment.New(st, decider, decider, "engine-test")
	ticks := testutil.NewManualTicks()
	obs := &recordObserver{}
	eng := New(st, coord, Config{TickInterval: time.Second, StepQty: 1},
		WithTickSource(ticks), WithObserver(obs))
	return &engineFixture{store: st, engine: eng, ticks: ticks, obs: obs}
}

func (f *engineFixture) createOrder(t *testing.T, code string, ordered int, mode model.SimulationMode) {
	t.Helper()
	require.NoError(t, f.store.CreateWorkOrder(context.Background(), model.WorkOrder{
		Code:        code,
		ProductCode: "WIDGET-01",
		OrderedQty:  ordered,
		Status:      model.StatusPending,
		Mode:        mode,
		PlannedDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}))
}

// waitProduced blocks until the persisted produced quantity reaches want.
func (f *engineFixture) waitProduced(t *testing.T, code string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		wo, err := f.store.GetWorkOrder(context.Background(), code)
		return err == nil && wo.ProducedQty >= want
	}, waitTimeout, time.Millisecond)
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(waitTimeout):
		t.Fatal("run did not finish in time")
	}
}

func TestEngine_RunsToCompletion(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createOrder(t, "PP-20260115-001", 5, model.ModeAutomatic)

	run, err := f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.NotEmpty(t, run.Token)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.TickN(5)
	waitDone(t, run)
	require.NoError(t, run.Err())

	wo, err := f.store.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, wo.Status)
	assert.Equal(t, 5, wo.ProducedQty)
	require.NotNil(t, wo.StartedAt)
	require.NotNil(t, wo.CompletedAt)

	// Completion posts exactly one receipt for the full quantity.
	stock, err := f.store.CurrentStock(ctx, "WIDGET-01")
	require.NoError(t, err)
	assert.Equal(t, 5, stock)
	postings, err := f.store.ListPostings(ctx, "WIDGET-01")
	require.NoError(t, err)
	assert.Len(t, postings, 1)

	status, endErr := f.obs.last()
	assert.Equal(t, model.StatusCompleted, status)
	assert.NoError(t, endErr)
	assert.False(t, f.engine.Running("PP-20260115-001"))
}

func TestEngine_StepClampsAtOrderedQty(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createOrder(t, "PP-20260115-001", 5, model.ModeAutomatic)
	f.engine.cfg.StepQty = 3

	run, err := f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	// 3, then clamp 6 -> 5.
	f.ticks.TickN(2)
	waitDone(t, run)
	require.NoError(t, run.Err())

	wo, err := f.store.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, 5, wo.ProducedQty)
	assert.Equal(t, model.StatusCompleted, wo.Status)
}

func TestEngine_SecondStartRejected(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createOrder(t, "PP-20260115-001", 5, model.ModeAutomatic)

	run, err := f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	_, err = f.engine.Start(ctx, "PP-20260115-001")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Original run is untouched and still completes.
	f.ticks.TickN(5)
	waitDone(t, run)
	require.NoError(t, run.Err())
}

func TestEngine_PauseAndResume(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createOrder(t, "PP-20260115-001", 5, model.ModeAutomatic)

	run, err := f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.TickN(2)
	f.waitProduced(t, "PP-20260115-001", 2)
	require.NoError(t, f.engine.Pause(ctx, "PP-20260115-001"))
	waitDone(t, run)

	wo, err := f.store.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, wo.Status)
	assert.Equal(t, 2, wo.ProducedQty)
	assert.False(t, f.engine.Running("PP-20260115-001"))

	// Resume picks up from the persisted quantity.
	run, err = f.engine.Resume(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.TickN(3)
	waitDone(t, run)
	require.NoError(t, run.Err())

	wo, err = f.store.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, wo.Status)
	assert.Equal(t, 5, wo.ProducedQty)
}

func TestEngine_StopDelaysThenRestartCompletes(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createOrder(t, "PP-20260115-001", 5, model.ModeAutomatic)

	run, err := f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.TickN(2)
	f.waitProduced(t, "PP-20260115-001", 2)
	require.NoError(t, f.engine.Stop(ctx, "PP-20260115-001"))
	waitDone(t, run)

	wo, err := f.store.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelayed, wo.Status)
	assert.Equal(t, 2, wo.ProducedQty)

	// Start on a delayed order restarts it without resetting progress.
	run, err = f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))

	f.ticks.TickN(3)
	waitDone(t, run)
	require.NoError(t, run.Err())

	wo, err = f.store.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, wo.Status)
	assert.Equal(t, 5, wo.ProducedQty)
}

func TestEngine_TickSequenceSpansRuns(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createOrder(t, "PP-20260115-001", 2, model.ModeAutomatic)
	f.createOrder(t, "PP-20260115-002", 3, model.ModeAutomatic)

	run, err := f.engine.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))
	f.ticks.TickN(2)
	waitDone(t, run)
	require.NoError(t, run.Err())

	run, err = f.engine.Start(ctx, "PP-20260115-002")
	require.NoError(t, err)
	require.True(t, f.ticks.WaitForConsumers(1, waitTimeout))
	f.ticks.TickN(3)
	waitDone(t, run)
	require.NoError(t, run.Err())

	// One logical clock per engine: seq keeps climbing across runs, so the
	// relative order of persisted ticks is explicit in the notifications.
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, f.obs.tickSeqs())

	// The run audit entries carry the clock too: the second run started at
	// the first run's final seq and completed at the engine-wide maximum.
	entries, err := f.store.ListAudit(ctx, 0)
	require.NoError(t, err)
	var details []string
	for _, e := range entries {
		if e.ActionType == "simulation-started" || e.ActionType == "simulation-completed" {
			details = append(details, e.Detail)
		}
	}
	require.Len(t, details, 4) // newest first
	assert.Contains(t, details[0], "order=PP-20260115-002")
	assert.Contains(t, details[0], "seq=5")
	assert.Contains(t, details[1], "order=PP-20260115-002")
	assert.Contains(t, details[1], "seq=2")
	assert.Contains(t, details[2], "order=PP-20260115-001")
	assert.Contains(t, details[2], "seq=2")
	assert.Contains(t, details[3], "order=PP-20260115-001")
	assert.Contains(t, details[3], "seq=0")
}

func TestEngine_StopWithoutRun(t *testing.T) {
	f := newEngineFixture(t)
	f.createOrder(t, "PP-20260115-001", 5, model.ModeAutomatic)

	err := f.engine.Stop(context.Background(), "PP-20260115-001")
	assert.ErrorIs(t, err, ErrNotRunning)
	err = f.engine.Pause(context.Background(), "PP-20260115-001")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestEngine_RejectsManualOrder(t *testing.T) {
	f := newEngineFixture(t)
	f.createOrder(t, "PP-20260115-001", 5, model.ModeManual)

	_, err := f.engine.Start(context.Background(), "PP-20260115-001")
	assert.ErrorIs(t, err, workorder.ErrInvalidTransition)
	assert.False(t, f.engine.Running("PP-20260115-001"))
}

func TestEngine_StartMissingOrder(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Start(context.Background(), "PP-20260115-099")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// failingCompleter rejects every completion.
type failingCompleter struct{}

func (failingCompleter) CompleteWorkOrder(context.Context, string, workorder.Origin) error {
	return assert.AnError
}

func TestEngine_CompletionFailureDelaysOrder(t *testing.T) {
	st := testutil.OpenStore(t)
	ticks := testutil.NewManualTicks()
	obs := &recordObserver{}
	eng := New(st, failingCompleter{}, DefaultConfig(), WithTickSource(ticks), WithObserver(obs))
	ctx := context.Background()

	require.NoError(t, st.CreateWorkOrder(ctx, model.WorkOrder{
		Code: "PP-20260115-001", ProductCode: "WIDGET-01", OrderedQty: 2,
		Status: model.StatusPending, Mode: model.ModeAutomatic,
		PlannedDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}))

	run, err := eng.Start(ctx, "PP-20260115-001")
	require.NoError(t, err)
	require.True(t, ticks.WaitForConsumers(1, waitTimeout))

	ticks.TickN(2)
	waitDone(t, run)
	require.ErrorIs(t, run.Err(), assert.AnError)

	wo, err := st.GetWorkOrder(ctx, "PP-20260115-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelayed, wo.Status)
	assert.Equal(t, 2, wo.ProducedQty)

	status, endErr := obs.last()
	assert.Equal(t, model.StatusDelayed, status)
	assert.Error(t, endErr)
}
