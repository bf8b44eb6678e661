package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/suk-kr/shopfloor/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const workOrderColumns = `
	code, order_number, product_code, product_name,
	ordered_qty, produced_qty, status, mode,
	line, shift, seq_for_day, planned_date,
	started_at, completed_at, employee_name, remarks`

// CreateWorkOrder inserts a new work order row. The code must already be
// allocated (see NextSequence); duplicate codes are an error, not a no-op.
func (tx *Tx) CreateWorkOrder(ctx context.Context, wo model.WorkOrder) error {
	return createWorkOrder(ctx, tx.tx, wo)
}

// CreateWorkOrder inserts a new work order outside any larger transaction.
func (s *Store) CreateWorkOrder(ctx context.Context, wo model.WorkOrder) error {
	return createWorkOrder(ctx, s.db, wo)
}

func createWorkOrder(ctx context.Context, q querier, wo model.WorkOrder) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO work_orders
		(code, order_number, product_code, product_name,
		 ordered_qty, produced_qty, status, mode,
		 line, shift, seq_for_day, planned_date, employee_name, remarks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		wo.Code, wo.OrderNumber, wo.ProductCode, wo.ProductName,
		wo.OrderedQty, wo.ProducedQty, string(wo.Status), string(wo.Mode),
		wo.Line, wo.Shift, wo.SeqForDay, fmtDate(wo.PlannedDate),
		wo.EmployeeName, wo.Remarks,
	)
	if err != nil {
		return fmt.Errorf("create work order %s: %w", wo.Code, err)
	}
	return nil
}

// GetWorkOrder reads one work order by code. Returns ErrNotFound if absent.
func (s *Store) GetWorkOrder(ctx context.Context, code string) (*model.WorkOrder, error) {
	return getWorkOrder(ctx, s.db, code)
}

// GetWorkOrder is the transaction-scoped variant used by the coordinator.
func (tx *Tx) GetWorkOrder(ctx context.Context, code string) (*model.WorkOrder, error) {
	return getWorkOrder(ctx, tx.tx, code)
}

func getWorkOrder(ctx context.Context, q querier, code string) (*model.WorkOrder, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+workOrderColumns+` FROM work_orders WHERE code = ?`, code)
	wo, err := scanWorkOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work order %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get work order %s: %w", code, err)
	}
	return wo, nil
}

// ListWorkOrders returns work orders ordered by planned date then sequence.
// An empty status lists everything.
func (s *Store) ListWorkOrders(ctx context.Context, status model.WorkOrderStatus) ([]model.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY planned_date, seq_for_day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	defer rows.Close()

	var out []model.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list work orders: %w", err)
		}
		out = append(out, *wo)
	}
	return out, rows.Err()
}

// UpdateWorkOrderStatus persists a status change. startedAt and completedAt
// are written only when non-nil; existing values are otherwise preserved.
func (s *Store) UpdateWorkOrderStatus(ctx context.Context, code string, status model.WorkOrderStatus, startedAt, completedAt *time.Time) error {
	return updateWorkOrderStatus(ctx, s.db, code, status, startedAt, completedAt)
}

// UpdateWorkOrderStatus is the transaction-scoped variant.
func (tx *Tx) UpdateWorkOrderStatus(ctx context.Context, code string, status model.WorkOrderStatus, startedAt, completedAt *time.Time) error {
	return updateWorkOrderStatus(ctx, tx.tx, code, status, startedAt, completedAt)
}

func updateWorkOrderStatus(ctx context.Context, q querier, code string, status model.WorkOrderStatus, startedAt, completedAt *time.Time) error {
	query := `UPDATE work_orders SET status = ?`
	args := []any{string(status)}
	if startedAt != nil {
		query += `, started_at = ?`
		args = append(args, fmtTime(*startedAt))
	}
	if completedAt != nil {
		query += `, completed_at = ?`
		args = append(args, fmtTime(*completedAt))
	}
	query += ` WHERE code = ?`
	args = append(args, code)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", code, err)
	}
	return requireRow(res, code)
}

// UpdateProducedQty persists a new produced quantity. This is the single
// write performed by each simulation tick. The CHECK constraint rejects
// quantities above the ordered quantity.
func (s *Store) UpdateProducedQty(ctx context.Context, code string, qty int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_orders SET produced_qty = ? WHERE code = ?`, qty, code)
	if err != nil {
		return fmt.Errorf("update produced qty of %s: %w", code, err)
	}
	return requireRow(res, code)
}

// SetProducedToOrdered is used by manual completion: the order is closed at
// its full ordered quantity in the same transaction as its side-effects.
func (tx *Tx) SetProducedToOrdered(ctx context.Context, code string) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE work_orders SET produced_qty = ordered_qty WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("set produced qty of %s: %w", code, err)
	}
	return requireRow(res, code)
}

func requireRow(res sql.Result, code string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("work order %s: %w", code, ErrNotFound)
	}
	return nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanWorkOrder(row scannable) (*model.WorkOrder, error) {
	var (
		wo                     model.WorkOrder
		status, mode, planned  string
		startedAt, completedAt sql.NullString
	)
	err := row.Scan(
		&wo.Code, &wo.OrderNumber, &wo.ProductCode, &wo.ProductName,
		&wo.OrderedQty, &wo.ProducedQty, &status, &mode,
		&wo.Line, &wo.Shift, &wo.SeqForDay, &planned,
		&startedAt, &completedAt, &wo.EmployeeName, &wo.Remarks,
	)
	if err != nil {
		return nil, err
	}
	wo.Status = model.WorkOrderStatus(status)
	wo.Mode = model.SimulationMode(mode)
	if wo.PlannedDate, err = parseDate(planned); err != nil {
		return nil, err
	}
	if wo.StartedAt, err = nullTime(startedAt); err != nil {
		return nil, err
	}
	if wo.CompletedAt, err = nullTime(completedAt); err != nil {
		return nil, err
	}
	return &wo, nil
}
