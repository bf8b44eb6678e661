// Package harness runs YAML lifecycle scenarios against a fresh in-memory
// ledger and compares the recorded trace against golden files. Scenarios
// exercise the real coordinator and simulation engine; determinism comes from
// a fixed clock, a manual tick source and scripted prompt answers.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suk-kr/shopfloor/internal/fulfillment"
	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/sim"
	"github.com/suk-kr/shopfloor/internal/store"
	"github.com/suk-kr/shopfloor/internal/testutil"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

// harnessUser is the operator recorded on documents created by scenarios.
const harnessUser = "harness"

// fixedNow is the scenario wall clock: every document date and sequence day
// derives from it, which pins the generated codes.
var fixedNow = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// Result holds a finished scenario run.
type Result struct {
	Scenario *Scenario
	Trace    []string
}

// Harness executes scenarios.
type Harness struct {
	store *store.Store

	mu    sync.Mutex
	trace []string
}

func (h *Harness) tracef(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, fmt.Sprintf(format, args...))
}

// ProductionUpdated implements sim.Observer. The seq is the engine's logical
// clock value for the tick, so the trace pins write order, not just totals.
func (h *Harness) ProductionUpdated(code string, produced, ordered int, seq int64) {
	h.tracef("tick %s %d/%d seq=%d", code, produced, ordered, seq)
}

// RunEnded implements sim.Observer. The run outcome is traced from the
// persisted row instead, which also covers runs halted by the scenario.
func (h *Harness) RunEnded(string, model.WorkOrderStatus, error) {}

// Run executes a scenario against a fresh in-memory store and returns its
// trace.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	h := &Harness{store: st}
	ctx := context.Background()

	for i, step := range scenario.Steps {
		if err := h.run(ctx, step); err != nil {
			return nil, fmt.Errorf("scenario %s step %d (%s): %w", scenario.Name, i+1, step.Op, err)
		}
	}
	return &Result{Scenario: scenario, Trace: h.trace}, nil
}

func (h *Harness) run(ctx context.Context, step Step) error {
	switch step.Op {
	case "post-inventory":
		return h.postInventory(ctx, step)
	case "stock":
		return h.stock(ctx, step)
	case "add-contract":
		return h.addContract(ctx, step)
	case "confirm-contract":
		return h.confirmContract(ctx, step)
	case "plan":
		return h.plan(ctx, step)
	case "start-order", "complete-order", "cancel-order":
		return h.orderEvent(ctx, step)
	case "simulate":
		return h.simulate(ctx, step)
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

// coordinator builds a coordinator answering prompts from the step's script.
func (h *Harness) coordinator(step Step) (*fulfillment.Coordinator, *testutil.ScriptedDecider) {
	decider := &testutil.ScriptedDecider{ConfirmAnswer: !step.Decline}
	if step.Plan != nil {
		decider.PlanOK = true
		decider.Plan = model.PlanRequest{
			Quantity:    step.Plan.Qty,
			Line:        step.Plan.Line,
			Shift:       step.Plan.Shift,
			Mode:        model.ModeAutomatic,
			PlannedDate: fixedNow,
		}
	}
	coord := fulfillment.New(h.store, decider, decider, harnessUser,
		fulfillment.WithClock(func() time.Time { return fixedNow }))
	return coord, decider
}

func (h *Harness) postInventory(ctx context.Context, step Step) error {
	qty := step.Qty
	ptype := model.PostingReceipt
	if qty < 0 {
		ptype = model.PostingIssue
	}
	if _, err := h.store.PostInventory(ctx, model.InventoryPosting{
		ProductCode: step.Product,
		Quantity:    qty,
		Type:        ptype,
		Remarks:     "scenario setup",
		PostedBy:    harnessUser,
		PostedAt:    fixedNow,
	}); err != nil {
		return err
	}
	stock, err := h.store.CurrentStock(ctx, step.Product)
	if err != nil {
		return err
	}
	h.tracef("post %s %+d stock=%d", step.Product, qty, stock)
	return nil
}

func (h *Harness) stock(ctx context.Context, step Step) error {
	stock, err := h.store.CurrentStock(ctx, step.Product)
	if err != nil {
		return err
	}
	h.tracef("stock %s=%d", step.Product, stock)
	return nil
}

func (h *Harness) addContract(ctx context.Context, step Step) error {
	delivery, err := step.deliveryDate()
	if err != nil {
		return err
	}
	if err := h.store.CreateContract(ctx, model.Contract{
		OrderNumber:  step.Order,
		CompanyCode:  step.Company,
		CompanyName:  step.Company,
		ProductCode:  step.Product,
		ProductName:  step.Name,
		Quantity:     step.Qty,
		DeliveryDate: delivery,
		Status:       model.ContractPending,
	}); err != nil {
		return err
	}
	h.tracef("contract %s %s qty=%d", step.Order, step.Product, step.Qty)
	return nil
}

func (h *Harness) confirmContract(ctx context.Context, step Step) error {
	coord, decider := h.coordinator(step)

	err := coord.ConfirmContract(ctx, step.Order)
	for _, n := range decider.Notifications() {
		h.tracef("notice %s", n)
	}
	if errors.Is(err, fulfillment.ErrDeclined) {
		h.tracef("confirm %s declined", step.Order)
		return nil
	}
	if err != nil {
		return err
	}

	contract, err := h.store.GetContract(ctx, step.Order)
	if err != nil {
		return err
	}

	shipments, err := h.store.ListShipments(ctx, "")
	if err != nil {
		return err
	}
	for _, sh := range shipments {
		if sh.OrderNumber == step.Order {
			h.tracef("confirm %s -> %s shipment=%s qty=%d", step.Order, contract.Status, sh.Code, sh.Quantity)
			return nil
		}
	}

	orders, err := h.store.ListWorkOrders(ctx, "")
	if err != nil {
		return err
	}
	for _, wo := range orders {
		if wo.OrderNumber == step.Order {
			h.tracef("confirm %s -> %s plan=%s qty=%d", step.Order, contract.Status, wo.Code, wo.OrderedQty)
			return nil
		}
	}
	h.tracef("confirm %s -> %s", step.Order, contract.Status)
	return nil
}

func (h *Harness) plan(ctx context.Context, step Step) error {
	coord, _ := h.coordinator(step)
	mode := model.SimulationMode(step.Mode)
	if step.Mode == "" {
		mode = model.ModeAutomatic
	}
	code, err := coord.PlanProduction(ctx, step.Product, step.Name, model.PlanRequest{
		Quantity:    step.Qty,
		Line:        step.Line,
		Shift:       step.Shift,
		Mode:        mode,
		PlannedDate: fixedNow,
	})
	if err != nil {
		return err
	}
	h.tracef("plan %s %s qty=%d mode=%s", code, step.Product, step.Qty, mode)
	return nil
}

func (h *Harness) orderEvent(ctx context.Context, step Step) error {
	coord, _ := h.coordinator(step)
	event := map[string]workorder.Event{
		"start-order":    workorder.EventStart,
		"complete-order": workorder.EventComplete,
		"cancel-order":   workorder.EventStop,
	}[step.Op]

	if err := coord.ApplyEvent(ctx, step.Order, event, workorder.OriginOperator); err != nil {
		if errors.Is(err, workorder.ErrInvalidTransition) {
			h.tracef("%s %s rejected", step.Op, step.Order)
			return nil
		}
		return err
	}
	wo, err := h.store.GetWorkOrder(ctx, step.Order)
	if err != nil {
		return err
	}
	h.tracef("%s %s -> %s %d/%d", step.Op, step.Order, wo.Status, wo.ProducedQty, wo.OrderedQty)
	return nil
}

func (h *Harness) simulate(ctx context.Context, step Step) error {
	coord, _ := h.coordinator(step)
	ticks := testutil.NewManualTicks()
	engine := sim.New(h.store, coord, sim.Config{TickInterval: time.Second, StepQty: 1},
		sim.WithTickSource(ticks), sim.WithObserver(h))

	wo, err := h.store.GetWorkOrder(ctx, step.Order)
	if err != nil {
		return err
	}
	var run *sim.Run
	if wo.Status == model.StatusPaused {
		run, err = engine.Resume(ctx, step.Order)
	} else {
		run, err = engine.Start(ctx, step.Order)
	}
	if err != nil {
		return err
	}
	if !ticks.WaitForConsumers(1, 5*time.Second) {
		return fmt.Errorf("run loop for %s never subscribed", step.Order)
	}
	ticks.TickN(step.Ticks)

	switch step.Halt {
	case "":
		select {
		case <-run.Done():
		case <-time.After(5 * time.Second):
			return fmt.Errorf("run for %s did not complete after %d ticks", step.Order, step.Ticks)
		}
		if err := run.Err(); err != nil {
			return err
		}
	case "stop":
		if err := h.waitProduced(ctx, step); err != nil {
			return err
		}
		if err := engine.Stop(ctx, step.Order); err != nil {
			return err
		}
	case "pause":
		if err := h.waitProduced(ctx, step); err != nil {
			return err
		}
		if err := engine.Pause(ctx, step.Order); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown halt %q", step.Halt)
	}

	final, err := h.store.GetWorkOrder(ctx, step.Order)
	if err != nil {
		return err
	}
	h.tracef("run %s -> %s %d/%d", step.Order, final.Status, final.ProducedQty, final.OrderedQty)
	return nil
}

// waitProduced blocks until every delivered tick has been applied, so a halt
// tears the run down at a known quantity.
func (h *Harness) waitProduced(ctx context.Context, step Step) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		wo, err := h.store.GetWorkOrder(ctx, step.Order)
		if err != nil {
			return err
		}
		if wo.ProducedQty >= step.Ticks || wo.ProducedQty == wo.OrderedQty {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("run for %s did not apply %d ticks in time", step.Order, step.Ticks)
}
