// Package sim is the simulation engine: a cancellable control loop per work
// order that advances produced quantity once per tick, persists every
// increment, and hands completed orders to the fulfillment coordinator.
//
// Concurrency model: each active run is one goroutine owning its ticker.
// All writes for a given order happen either in its run goroutine or in an
// engine method that has first cancelled the goroutine and waited for it to
// exit, so per-order writes are serialized by construction. Cancellation is
// cooperative: the context is checked at the top of every tick and a
// cancelled run performs no further writes.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/store"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

// Engine guard violations. Returned to the immediate caller; never silently
// swallowed.
var (
	// ErrAlreadyRunning reports a second Start while a run is active.
	ErrAlreadyRunning = errors.New("simulation already running for this order")
	// ErrNotRunning reports Pause/Stop on an order with no active run.
	ErrNotRunning = errors.New("no simulation running for this order")
)

// Completer receives a finished order for its completion side-effects.
// Implemented by fulfillment.Coordinator.
type Completer interface {
	CompleteWorkOrder(ctx context.Context, code string, origin workorder.Origin) error
}

// Observer receives run progress. Implementations must return promptly;
// they are called from the run goroutine between ticks.
type Observer interface {
	// ProductionUpdated reports one persisted tick.
	ProductionUpdated(code string, produced, ordered int, seq int64)
	// RunEnded reports why a run loop exited. err is nil for pause, stop
	// and successful completion.
	RunEnded(code string, status model.WorkOrderStatus, err error)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) ProductionUpdated(string, int, int, int64)     {}
func (NopObserver) RunEnded(string, model.WorkOrderStatus, error) {}

// Config holds the engine's tick parameters.
type Config struct {
	// TickInterval is the fixed delay between production increments.
	TickInterval time.Duration
	// StepQty is the quantity produced per tick.
	StepQty int
}

// DefaultConfig mirrors the line's historical simulation rate: one unit per
// second.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second, StepQty: 1}
}

// Engine owns the active runs. At most one run exists per order at any time.
type Engine struct {
	store     *store.Store
	completer Completer
	obs       Observer
	cfg       Config
	clock     *Clock
	ticks     TickSource

	mu   sync.Mutex
	runs map[string]*Run
}

// Option configures an Engine.
type Option func(*Engine)

// WithTickSource substitutes the tick source. Tests use a manual source to
// drive ticks deterministically.
func WithTickSource(ts TickSource) Option {
	return func(e *Engine) { e.ticks = ts }
}

// WithObserver registers the progress observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.obs = obs }
}

// New builds an Engine. completer runs the completion side-effects when a
// run reaches its target quantity.
func New(st *store.Store, completer Completer, cfg Config, opts ...Option) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.StepQty <= 0 {
		cfg.StepQty = 1
	}
	e := &Engine{
		store:     st,
		completer: completer,
		obs:       NopObserver{},
		cfg:       cfg,
		clock:     NewClock(),
		ticks:     realTicks{},
		runs:      make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run is the handle for one active simulation run.
type Run struct {
	Token string // UUID identifying this run in the audit trail

	code   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error // set before done closes
}

// Done is closed when the run loop has exited and all its writes are
// visible.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err reports why the run ended. Valid after Done is closed; nil for pause,
// stop and successful completion.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Start begins the run loop for an order. Pending orders start, delayed
// orders restart; anything else is an invalid transition. A second Start
// while a run is active fails with ErrAlreadyRunning and leaves the original
// run untouched.
func (e *Engine) Start(ctx context.Context, code string) (*Run, error) {
	return e.launch(ctx, code, false)
}

// Resume restarts ticking for a paused order from its persisted quantity.
func (e *Engine) Resume(ctx context.Context, code string) (*Run, error) {
	return e.launch(ctx, code, true)
}

func (e *Engine) launch(ctx context.Context, code string, resuming bool) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, active := e.runs[code]; active {
		return nil, fmt.Errorf("start %s: %w", code, ErrAlreadyRunning)
	}

	wo, err := e.store.GetWorkOrder(ctx, code)
	if err != nil {
		return nil, err
	}

	var event workorder.Event
	switch {
	case resuming:
		event = workorder.EventResume
	case wo.Status == model.StatusDelayed:
		event = workorder.EventRestart
	default:
		event = workorder.EventStart
	}

	next, err := workorder.Next(wo.Status, wo.Mode, event, workorder.OriginEngine)
	if err != nil {
		return nil, err
	}

	var startedAt *time.Time
	if event == workorder.EventStart {
		now := time.Now()
		startedAt = &now
	}
	if err := e.store.UpdateWorkOrderStatus(ctx, code, next, startedAt, nil); err != nil {
		return nil, err
	}

	// The run outlives the caller's context: its lifecycle belongs to the
	// engine and ends only through Pause/Stop/completion.
	runCtx, cancel := context.WithCancel(context.Background())
	r := &Run{
		Token:  uuid.Must(uuid.NewV7()).String(),
		code:   code,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.runs[code] = r

	e.store.AppendAudit(ctx, "engine", "simulation-started",
		fmt.Sprintf("order=%s run=%s event=%s seq=%d", code, r.Token, event, e.clock.Current()))

	go e.loop(runCtx, r, wo.ProducedQty, wo.OrderedQty)
	return r, nil
}

// Pause stops ticking without cancelling the order: the loop is torn down,
// then the order is marked Paused. Resume picks up from the persisted
// quantity.
func (e *Engine) Pause(ctx context.Context, code string) error {
	r, err := e.takeRun(code)
	if err != nil {
		return fmt.Errorf("pause %s: %w", code, err)
	}
	r.cancel()
	<-r.done // all loop writes visible from here

	if err := e.applyHaltStatus(ctx, code, workorder.EventPause, model.StatusPaused); err != nil {
		return err
	}
	e.obs.RunEnded(code, model.StatusPaused, nil)
	return nil
}

// Stop cancels the run and transitions the order to Delayed. Cancellation
// is cooperative: it takes effect at the next tick boundary, and the loop
// performs no writes after observing it.
func (e *Engine) Stop(ctx context.Context, code string) error {
	r, err := e.takeRun(code)
	if err != nil {
		return fmt.Errorf("stop %s: %w", code, err)
	}
	r.cancel()
	<-r.done

	if err := e.applyHaltStatus(ctx, code, workorder.EventStop, model.StatusDelayed); err != nil {
		return err
	}
	e.obs.RunEnded(code, model.StatusDelayed, nil)
	return nil
}

// Running reports whether an active run exists for the order.
func (e *Engine) Running(code string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[code]
	return ok
}

// takeRun removes and returns the active run for code.
func (e *Engine) takeRun(code string) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[code]
	if !ok {
		return nil, ErrNotRunning
	}
	delete(e.runs, code)
	return r, nil
}

// applyHaltStatus persists the post-cancellation status if the order is
// still in a state that allows it. A loop that completed or failed just
// before cancellation has already written its terminal status; that write
// wins.
func (e *Engine) applyHaltStatus(ctx context.Context, code string, event workorder.Event, to model.WorkOrderStatus) error {
	wo, err := e.store.GetWorkOrder(ctx, code)
	if err != nil {
		return err
	}
	if _, err := workorder.Next(wo.Status, wo.Mode, event, workorder.OriginEngine); err != nil {
		var te *workorder.TransitionError
		if errors.As(err, &te) && wo.Status.Terminal() {
			// Lost the race against completion/failure; nothing to do.
			return nil
		}
		return err
	}
	return e.store.UpdateWorkOrderStatus(ctx, code, to, nil, nil)
}

// loop is the run body. Exactly one goroutine executes it per order.
func (e *Engine) loop(ctx context.Context, r *Run, produced, ordered int) {
	defer close(r.done)
	defer e.dropRun(r)

	ticks, stop := e.ticks.Ticks(e.cfg.TickInterval)
	defer stop()

	var seq int64
	for produced < ordered {
		// Cancellation is checked before each tick: once ctx is done this
		// loop performs no further writes.
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
		if ctx.Err() != nil {
			return
		}

		produced += e.cfg.StepQty
		if produced > ordered {
			produced = ordered
		}

		if err := e.store.UpdateProducedQty(ctx, r.code, produced); err != nil {
			e.fail(ctx, r, fmt.Errorf("tick write for %s: %w", r.code, err))
			return
		}
		seq = e.clock.Next()
		e.obs.ProductionUpdated(r.code, produced, ordered, seq)
	}

	// Target reached: run the completion side-effects. On failure the order
	// reverts to Delayed and the failure is surfaced, not swallowed.
	if err := e.completer.CompleteWorkOrder(ctx, r.code, workorder.OriginEngine); err != nil {
		e.fail(ctx, r, fmt.Errorf("complete %s: %w", r.code, err))
		return
	}

	e.store.AppendAudit(ctx, "engine", "simulation-completed",
		fmt.Sprintf("order=%s run=%s qty=%d seq=%d", r.code, r.Token, produced, seq))
	e.obs.RunEnded(r.code, model.StatusCompleted, nil)
}

// fail reverts the order to Delayed and records why the run ended. Every
// failed run lands in a defined status; an order is never left dangling
// in-progress.
func (e *Engine) fail(ctx context.Context, r *Run, cause error) {
	slog.Error("simulation run failed", "order", r.code, "run", r.Token, "error", cause)
	r.setErr(cause)

	if err := e.store.UpdateWorkOrderStatus(ctx, r.code, model.StatusDelayed, nil, nil); err != nil {
		slog.Error("failed to mark order delayed", "order", r.code, "error", err)
	}
	e.obs.RunEnded(r.code, model.StatusDelayed, cause)
}

// dropRun removes the run from the registry if still present (completion
// and failure paths; Pause/Stop remove it themselves via takeRun).
func (e *Engine) dropRun(r *Run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.runs[r.code]; ok && cur == r {
		delete(e.runs, r.code)
	}
}
