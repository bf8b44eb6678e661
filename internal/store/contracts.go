package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/suk-kr/shopfloor/internal/model"
)

const contractColumns = `
	order_number, company_code, company_name,
	product_code, product_name, quantity, delivery_date, status`

// CreateContract inserts a new sales order in pending status.
func (s *Store) CreateContract(ctx context.Context, c model.Contract) error {
	if c.Status == "" {
		c.Status = model.ContractPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
		(order_number, company_code, company_name,
		 product_code, product_name, quantity, delivery_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.OrderNumber, c.CompanyCode, c.CompanyName,
		c.ProductCode, c.ProductName, c.Quantity,
		fmtDate(c.DeliveryDate), string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("create contract %s: %w", c.OrderNumber, err)
	}
	return nil
}

// GetContract reads one contract. Returns ErrNotFound if absent.
func (s *Store) GetContract(ctx context.Context, orderNumber string) (*model.Contract, error) {
	return getContract(ctx, s.db, orderNumber)
}

// GetContract is the transaction-scoped variant.
func (tx *Tx) GetContract(ctx context.Context, orderNumber string) (*model.Contract, error) {
	return getContract(ctx, tx.tx, orderNumber)
}

func getContract(ctx context.Context, q querier, orderNumber string) (*model.Contract, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE order_number = ?`, orderNumber)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %s: %w", orderNumber, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %s: %w", orderNumber, err)
	}
	return c, nil
}

// ListContracts returns contracts ordered by delivery date. An empty status
// lists everything.
func (s *Store) ListContracts(ctx context.Context, status model.ContractStatus) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY delivery_date, order_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateContractStatus persists a contract status change.
func (tx *Tx) UpdateContractStatus(ctx context.Context, orderNumber string, status model.ContractStatus) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE contracts SET status = ? WHERE order_number = ?`,
		string(status), orderNumber)
	if err != nil {
		return fmt.Errorf("update contract %s: %w", orderNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("contract %s: %w", orderNumber, ErrNotFound)
	}
	return nil
}

func scanContract(row scannable) (*model.Contract, error) {
	var (
		c              model.Contract
		delivery, stat string
	)
	err := row.Scan(
		&c.OrderNumber, &c.CompanyCode, &c.CompanyName,
		&c.ProductCode, &c.ProductName, &c.Quantity, &delivery, &stat,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ContractStatus(stat)
	if c.DeliveryDate, err = parseDate(delivery); err != nil {
		return nil, err
	}
	return &c, nil
}
