package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/store"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

// PlanProduction registers a standalone production plan (not linked to any
// contract) and returns the allocated order code. The code's sequence part is
// per prefix and planned date, issued inside the same transaction that
// creates the row.
func (c *Coordinator) PlanProduction(ctx context.Context, productCode, productName string, plan model.PlanRequest) (string, error) {
	if plan.Quantity <= 0 {
		return "", fmt.Errorf("plan production: quantity must be positive, got %d", plan.Quantity)
	}
	if plan.PlannedDate.IsZero() {
		plan.PlannedDate = c.now()
	}
	if plan.Mode == "" {
		plan.Mode = model.ModeManual
	}
	if !plan.Mode.Valid() {
		return "", fmt.Errorf("plan production: unknown mode %q", plan.Mode)
	}
	if plan.EmployeeName == "" {
		plan.EmployeeName = c.userID
	}

	var code string
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		seq, err := tx.NextSequence(ctx, model.PrefixWorkOrder, plan.PlannedDate)
		if err != nil {
			return err
		}
		code = model.FormatCode(model.PrefixWorkOrder, plan.PlannedDate, seq)

		if err := tx.CreateWorkOrder(ctx, model.WorkOrder{
			Code:         code,
			ProductCode:  productCode,
			ProductName:  productName,
			OrderedQty:   plan.Quantity,
			Status:       model.StatusPending,
			Mode:         plan.Mode,
			Line:         plan.Line,
			Shift:        plan.Shift,
			SeqForDay:    seq,
			PlannedDate:  plan.PlannedDate,
			EmployeeName: plan.EmployeeName,
			Remarks:      plan.Remarks,
		}); err != nil {
			return err
		}

		_, err = tx.AppendAudit(ctx, c.userID, "plan-registered",
			fmt.Sprintf("plan=%s product=%s qty=%d line=%s mode=%s",
				code, productCode, plan.Quantity, plan.Line, plan.Mode))
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ApplyEvent applies a lifecycle event to a work order on behalf of origin:
// validate the transition, persist the new status with its timestamps, append
// an audit entry, all in one transaction. Completion is not handled here -
// it has side-effects beyond the status row and goes through
// CompleteWorkOrder.
func (c *Coordinator) ApplyEvent(ctx context.Context, code string, event workorder.Event, origin workorder.Origin) error {
	if event == workorder.EventComplete {
		return c.CompleteWorkOrder(ctx, code, origin)
	}
	now := c.now()

	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		wo, err := tx.GetWorkOrder(ctx, code)
		if err != nil {
			return err
		}
		to, err := workorder.Next(wo.Status, wo.Mode, event, origin)
		if err != nil {
			return err
		}

		var started *time.Time
		if to == model.StatusInProgress && wo.StartedAt == nil {
			started = &now
		}
		if err := tx.UpdateWorkOrderStatus(ctx, code, to, started, nil); err != nil {
			return err
		}

		_, err = tx.AppendAudit(ctx, c.userID, "work-order-"+string(event),
			fmt.Sprintf("order=%s %s->%s origin=%s", code, wo.Status, to, origin))
		return err
	})
}
