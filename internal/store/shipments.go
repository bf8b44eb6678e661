package store

import (
	"context"
	"fmt"
	"time"

	"github.com/suk-kr/shopfloor/internal/model"
)

// CreateShipment inserts a new shipment row.
//
// When s.OrderNumber is non-empty the insert runs against the unique
// order_number column with ON CONFLICT DO NOTHING: a shipment already
// linked to that contract makes this a no-op and inserted=false. A confirmed
// contract therefore gets at most one shipment no matter how many completion
// or confirmation paths race to create it. Standalone shipments store NULL
// and never conflict.
func (tx *Tx) CreateShipment(ctx context.Context, sh model.Shipment) (inserted bool, err error) {
	if sh.Status == "" {
		sh.Status = model.ShipmentPending
	}
	if sh.Vehicle == "" {
		sh.Vehicle = "unassigned"
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now()
	}
	var orderNumber any
	if sh.OrderNumber != "" {
		orderNumber = sh.OrderNumber
	}
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO shipments
		(code, order_number, company_code, company_name,
		 product_code, quantity, scheduled_for, vehicle, status,
		 created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_number) DO NOTHING
	`,
		sh.Code, orderNumber, sh.CompanyCode, sh.CompanyName,
		sh.ProductCode, sh.Quantity, fmtDate(sh.ScheduledFor),
		sh.Vehicle, string(sh.Status), sh.CreatedBy, fmtTime(sh.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("create shipment %s: %w", sh.Code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create shipment %s: %w", sh.Code, err)
	}
	return n > 0, nil
}

// HasShipmentForContract reports whether a shipment already exists for the
// given contract order number.
func (tx *Tx) HasShipmentForContract(ctx context.Context, orderNumber string) (bool, error) {
	var n int
	err := tx.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shipments WHERE order_number = ?`, orderNumber).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check shipment for %s: %w", orderNumber, err)
	}
	return n > 0, nil
}

// ListShipments returns shipments ordered by scheduled date. An empty status
// lists everything.
func (s *Store) ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error) {
	query := `
		SELECT code, COALESCE(order_number, ''), company_code, company_name,
		       product_code, quantity, scheduled_for, vehicle, status,
		       created_by, created_at
		FROM shipments`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY scheduled_for, code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var out []model.Shipment
	for rows.Next() {
		var (
			sh                  model.Shipment
			scheduled, stat, at string
		)
		if err := rows.Scan(&sh.Code, &sh.OrderNumber, &sh.CompanyCode, &sh.CompanyName,
			&sh.ProductCode, &sh.Quantity, &scheduled, &sh.Vehicle, &stat,
			&sh.CreatedBy, &at); err != nil {
			return nil, fmt.Errorf("list shipments: %w", err)
		}
		sh.Status = model.ShipmentStatus(stat)
		if sh.ScheduledFor, err = parseDate(scheduled); err != nil {
			return nil, fmt.Errorf("list shipments: %w", err)
		}
		if sh.CreatedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("list shipments: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}
