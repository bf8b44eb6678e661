// Package fulfillment links work-order completion and contract confirmation
// to their cross-entity side-effects: inventory receipts, shipment creation
// and shortfall production plans. Every entry point is one store transaction;
// idempotency guards make the completion path safe to invoke more than once.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/store"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

// Decider is the injected human-decision capability. Implementations must
// return promptly (modal prompt, scripted answer); the coordinator collects
// every decision BEFORE opening its transaction so a store transaction is
// never held open across a prompt.
type Decider interface {
	// Confirm asks a yes/no question.
	Confirm(prompt string) bool

	// RequestPlan asks for the production plan covering a stock shortfall.
	// Returning ok=false declines: the contract stays pending and nothing
	// is written.
	RequestPlan(contract model.Contract, shortfall int) (model.PlanRequest, bool)
}

// Notifier receives user-facing progress messages. Distinct from logging:
// these are the messages an operator sees.
type Notifier interface {
	Notify(format string, args ...any)
}

// ErrDeclined reports that the human declined a confirmation or plan
// request. The caller treats it as a clean abort, not a failure.
var ErrDeclined = errors.New("declined by operator")

// ErrIncomplete reports a completion attempt on an order whose produced
// quantity has not reached its ordered quantity.
var ErrIncomplete = errors.New("produced quantity below ordered quantity")

// Coordinator executes the fulfillment consistency protocol.
type Coordinator struct {
	store    *store.Store
	decider  Decider
	notifier Notifier
	userID   string
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the wall clock. Used by tests for deterministic
// timestamps and document dates.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New builds a Coordinator. userID is recorded on every audit entry and
// created document.
func New(st *store.Store, decider Decider, notifier Notifier, userID string, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		decider:  decider,
		notifier: notifier,
		userID:   userID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompleteWorkOrder closes a work order and runs its completion side-effects
// as one transactional unit:
//
//  1. validate the transition (InProgress -> Completed for the given origin)
//  2. set the completion timestamp; operator completions also close the
//     produced quantity at the ordered quantity
//  3. post the inventory receipt, guarded by the order's correlation tag -
//     a receipt already carrying the tag makes this step a no-op, which is
//     what makes completion idempotent across restarts
//  4. if the order is linked to a confirmed contract with no shipment yet,
//     create the pending shipment for the full contract quantity
//
// Any failing step rolls back the whole unit and the caller receives a
// single wrapped error. The simulation engine reverts the order to Delayed
// when this returns an error.
func (c *Coordinator) CompleteWorkOrder(ctx context.Context, code string, origin workorder.Origin) error {
	now := c.now()

	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		wo, err := tx.GetWorkOrder(ctx, code)
		if err != nil {
			return err
		}

		if _, err := workorder.Next(wo.Status, wo.Mode, workorder.EventComplete, origin); err != nil {
			return err
		}

		if origin == workorder.OriginOperator {
			// Manual completion closes the order at its full quantity.
			if err := tx.SetProducedToOrdered(ctx, code); err != nil {
				return err
			}
			wo.ProducedQty = wo.OrderedQty
		} else if wo.ProducedQty < wo.OrderedQty {
			return fmt.Errorf("work order %s at %d/%d: %w", code, wo.ProducedQty, wo.OrderedQty, ErrIncomplete)
		}

		if err := tx.UpdateWorkOrderStatus(ctx, code, model.StatusCompleted, nil, &now); err != nil {
			return err
		}

		// Explicit idempotency check; the unique tag column backstops it if
		// another writer races this transaction.
		tag := model.CorrelationTag(code)
		posted, err := tx.HasPostingWithTag(ctx, tag)
		if err != nil {
			return err
		}
		if posted {
			slog.Debug("completion receipt already posted", "order", code, "tag", tag)
		} else if _, err := tx.PostInventory(ctx, model.InventoryPosting{
			ProductCode: wo.ProductCode,
			Quantity:    wo.ProducedQty,
			Type:        model.PostingReceipt,
			Tag:         tag,
			Remarks:     fmt.Sprintf("production receipt (work order %s)", code),
			PostedBy:    c.userID,
			PostedAt:    now,
		}); err != nil {
			return err
		}

		if wo.OrderNumber != "" {
			if err := c.shipForContract(ctx, tx, wo, now); err != nil {
				return err
			}
		}

		if _, err := tx.AppendAudit(ctx, c.userID, "work-order-completed",
			fmt.Sprintf("order=%s product=%s qty=%d", code, wo.ProductCode, wo.ProducedQty)); err != nil {
			return err
		}
		return nil
	})
}

// shipForContract creates the pending shipment for a completed order's
// linked contract, if the contract is confirmed and unshipped.
func (c *Coordinator) shipForContract(ctx context.Context, tx *store.Tx, wo *model.WorkOrder, now time.Time) error {
	contract, err := tx.GetContract(ctx, wo.OrderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Dangling link: the order references a contract that was never
			// registered. Complete the order anyway, skip the shipment.
			slog.Warn("work order links missing contract", "order", wo.Code, "contract", wo.OrderNumber)
			return nil
		}
		return err
	}
	if contract.Status != model.ContractConfirmed {
		return nil
	}

	seq, err := tx.NextSequence(ctx, model.PrefixShipment, now)
	if err != nil {
		return err
	}
	shipCode := model.FormatCode(model.PrefixShipment, now, seq)

	inserted, err := tx.CreateShipment(ctx, model.Shipment{
		Code:         shipCode,
		OrderNumber:  contract.OrderNumber,
		CompanyCode:  contract.CompanyCode,
		CompanyName:  contract.CompanyName,
		ProductCode:  contract.ProductCode,
		Quantity:     contract.Quantity,
		ScheduledFor: contract.DeliveryDate,
		CreatedBy:    c.userID,
		CreatedAt:    now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		slog.Debug("contract already shipped", "contract", contract.OrderNumber)
		return nil
	}

	_, err = tx.AppendAudit(ctx, c.userID, "shipment-created",
		fmt.Sprintf("shipment=%s contract=%s qty=%d", shipCode, contract.OrderNumber, contract.Quantity))
	return err
}

// ConfirmContract confirms a pending sales order.
//
// Stock sufficiency decides the branch: enough stock means the contract is
// confirmed and a pending shipment is created (no inventory deduction yet -
// deduction happens at shipment confirmation); a shortfall means the human
// supplies a production plan covering the missing quantity, a new pending
// work order linked to the contract is registered, and the contract is
// confirmed against that plan.
//
// All human decisions are collected before the transaction opens; the
// transaction re-reads the contract and re-checks stock, so a decision based
// on stale stock aborts instead of over-committing. Declining returns
// ErrDeclined with nothing written.
func (c *Coordinator) ConfirmContract(ctx context.Context, orderNumber string) error {
	contract, err := c.store.GetContract(ctx, orderNumber)
	if err != nil {
		return err
	}
	if contract.Status != model.ContractPending {
		return fmt.Errorf("contract %s is %s, only pending contracts can be confirmed",
			orderNumber, contract.Status)
	}

	stock, err := c.store.CurrentStock(ctx, contract.ProductCode)
	if err != nil {
		return err
	}

	if stock >= contract.Quantity {
		ok := c.decider.Confirm(fmt.Sprintf(
			"Confirm contract %s for %s?\n  current stock: %d\n  required:      %d",
			contract.OrderNumber, contract.ProductName, stock, contract.Quantity))
		if !ok {
			return fmt.Errorf("confirm contract %s: %w", orderNumber, ErrDeclined)
		}
		return c.confirmFromStock(ctx, *contract)
	}

	shortfall := contract.Quantity - stock
	c.notifier.Notify("Insufficient stock for %s: current %d, required %d, to produce %d",
		contract.ProductName, stock, contract.Quantity, shortfall)

	plan, ok := c.decider.RequestPlan(*contract, shortfall)
	if !ok {
		return fmt.Errorf("confirm contract %s: %w", orderNumber, ErrDeclined)
	}
	if plan.Quantity == 0 {
		plan.Quantity = shortfall
	}
	if plan.Quantity < shortfall {
		return fmt.Errorf("confirm contract %s: planned quantity %d does not cover shortfall %d",
			orderNumber, plan.Quantity, shortfall)
	}
	return c.confirmWithPlan(ctx, *contract, plan, shortfall)
}

// confirmFromStock is the sufficient-stock branch: confirm + pending shipment.
func (c *Coordinator) confirmFromStock(ctx context.Context, contract model.Contract) error {
	now := c.now()

	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := c.requirePending(ctx, tx, contract.OrderNumber); err != nil {
			return err
		}

		// Re-check under the transaction: the prompt answer may be stale.
		stock, err := tx.CurrentStock(ctx, contract.ProductCode)
		if err != nil {
			return err
		}
		if stock < contract.Quantity {
			return fmt.Errorf("stock for %s changed to %d (need %d), retry confirmation",
				contract.ProductCode, stock, contract.Quantity)
		}

		if err := tx.UpdateContractStatus(ctx, contract.OrderNumber, model.ContractConfirmed); err != nil {
			return err
		}

		seq, err := tx.NextSequence(ctx, model.PrefixShipment, now)
		if err != nil {
			return err
		}
		shipCode := model.FormatCode(model.PrefixShipment, now, seq)

		inserted, err := tx.CreateShipment(ctx, model.Shipment{
			Code:         shipCode,
			OrderNumber:  contract.OrderNumber,
			CompanyCode:  contract.CompanyCode,
			CompanyName:  contract.CompanyName,
			ProductCode:  contract.ProductCode,
			Quantity:     contract.Quantity,
			ScheduledFor: contract.DeliveryDate,
			CreatedBy:    c.userID,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("contract %s already has a shipment", contract.OrderNumber)
		}

		_, err = tx.AppendAudit(ctx, c.userID, "contract-confirmed-shipment",
			fmt.Sprintf("contract=%s shipment=%s stock=%d qty=%d",
				contract.OrderNumber, shipCode, stock, contract.Quantity))
		return err
	})
}

// confirmWithPlan is the shortfall branch: register the production plan and
// confirm the contract against it, in one unit.
func (c *Coordinator) confirmWithPlan(ctx context.Context, contract model.Contract, plan model.PlanRequest, shortfall int) error {
	now := c.now()
	if plan.PlannedDate.IsZero() {
		plan.PlannedDate = now
	}
	if plan.PlannedDate.After(contract.DeliveryDate) {
		return fmt.Errorf("confirm contract %s: planned date %s is after delivery date %s",
			contract.OrderNumber, plan.PlannedDate.Format("2006-01-02"),
			contract.DeliveryDate.Format("2006-01-02"))
	}
	if plan.Mode == "" {
		plan.Mode = model.ModeAutomatic
	}
	if plan.EmployeeName == "" {
		plan.EmployeeName = c.userID
	}

	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := c.requirePending(ctx, tx, contract.OrderNumber); err != nil {
			return err
		}

		// Re-check: if stock arrived meanwhile, the plan would overproduce.
		stock, err := tx.CurrentStock(ctx, contract.ProductCode)
		if err != nil {
			return err
		}
		if contract.Quantity-stock != shortfall {
			return fmt.Errorf("stock for %s changed (shortfall now %d, planned for %d), retry confirmation",
				contract.ProductCode, contract.Quantity-stock, shortfall)
		}

		seq, err := tx.NextSequence(ctx, model.PrefixWorkOrder, plan.PlannedDate)
		if err != nil {
			return err
		}
		code := model.FormatCode(model.PrefixWorkOrder, plan.PlannedDate, seq)

		if err := tx.CreateWorkOrder(ctx, model.WorkOrder{
			Code:         code,
			OrderNumber:  contract.OrderNumber,
			ProductCode:  contract.ProductCode,
			ProductName:  contract.ProductName,
			OrderedQty:   plan.Quantity,
			Status:       model.StatusPending,
			Mode:         plan.Mode,
			Line:         plan.Line,
			Shift:        plan.Shift,
			SeqForDay:    seq,
			PlannedDate:  plan.PlannedDate,
			EmployeeName: plan.EmployeeName,
			Remarks:      fmt.Sprintf("contract %s - %s", contract.OrderNumber, plan.Remarks),
		}); err != nil {
			return err
		}

		if err := tx.UpdateContractStatus(ctx, contract.OrderNumber, model.ContractConfirmed); err != nil {
			return err
		}

		_, err = tx.AppendAudit(ctx, c.userID, "contract-confirmed-plan",
			fmt.Sprintf("contract=%s plan=%s qty=%d shortfall=%d line=%s shift=%s",
				contract.OrderNumber, code, plan.Quantity, shortfall, plan.Line, plan.Shift))
		return err
	})
}

// requirePending re-reads the contract inside the transaction and rejects
// anything no longer pending (double confirmation, cancelled meanwhile).
func (c *Coordinator) requirePending(ctx context.Context, tx *store.Tx, orderNumber string) error {
	contract, err := tx.GetContract(ctx, orderNumber)
	if err != nil {
		return err
	}
	if contract.Status != model.ContractPending {
		return fmt.Errorf("contract %s is %s, only pending contracts can be confirmed",
			orderNumber, contract.Status)
	}
	return nil
}
