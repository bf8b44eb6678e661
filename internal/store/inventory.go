package store

import (
	"context"
	"fmt"
	"time"

	"github.com/suk-kr/shopfloor/internal/model"
)

// CurrentStock returns the signed sum of postings for a product. A product
// with no postings has stock 0.
func (s *Store) CurrentStock(ctx context.Context, productCode string) (int, error) {
	return currentStock(ctx, s.db, productCode)
}

// CurrentStock is the transaction-scoped variant. The fulfillment
// coordinator re-checks stock inside its transaction so a stale pre-check
// can never over-commit.
func (tx *Tx) CurrentStock(ctx context.Context, productCode string) (int, error) {
	return currentStock(ctx, tx.tx, productCode)
}

func currentStock(ctx context.Context, q querier, productCode string) (int, error) {
	var stock int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_postings
		WHERE product_code = ?
	`, productCode).Scan(&stock)
	if err != nil {
		return 0, fmt.Errorf("current stock of %s: %w", productCode, err)
	}
	return stock, nil
}

// PostInventory appends one ledger row.
//
// When p.Tag is non-empty the insert uses ON CONFLICT DO NOTHING against the
// unique tag index: a posting with the same tag already present makes this a
// no-op and inserted=false. This is the idempotency guard that makes
// work-order completion safe to retry.
func (tx *Tx) PostInventory(ctx context.Context, p model.InventoryPosting) (inserted bool, err error) {
	return postInventory(ctx, tx.tx, p)
}

// PostInventory appends one ledger row outside any larger transaction.
// Used for ad hoc receipts and issues from the CLI.
func (s *Store) PostInventory(ctx context.Context, p model.InventoryPosting) (inserted bool, err error) {
	return postInventory(ctx, s.db, p)
}

func postInventory(ctx context.Context, q querier, p model.InventoryPosting) (bool, error) {
	if p.PostedAt.IsZero() {
		p.PostedAt = time.Now()
	}
	var tag any
	if p.Tag != "" {
		tag = model.NormalizeTag(p.Tag)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO inventory_postings
		(product_code, quantity, type, tag, remarks, posted_by, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tag) DO NOTHING
	`,
		p.ProductCode, p.Quantity, string(p.Type), tag,
		p.Remarks, p.PostedBy, fmtTime(p.PostedAt),
	)
	if err != nil {
		return false, fmt.Errorf("post inventory for %s: %w", p.ProductCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("post inventory for %s: %w", p.ProductCode, err)
	}
	return n > 0, nil
}

// HasPostingWithTag reports whether a posting already carries the tag.
func (tx *Tx) HasPostingWithTag(ctx context.Context, tag string) (bool, error) {
	var n int
	err := tx.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inventory_postings WHERE tag = ?
	`, model.NormalizeTag(tag)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check posting tag %q: %w", tag, err)
	}
	return n > 0, nil
}

// ListPostings returns the ledger for a product, oldest first. An empty
// product code lists the whole ledger.
func (s *Store) ListPostings(ctx context.Context, productCode string) ([]model.InventoryPosting, error) {
	query := `
		SELECT id, product_code, quantity, type,
		       COALESCE(tag, ''), remarks, posted_by, posted_at
		FROM inventory_postings`
	args := []any{}
	if productCode != "" {
		query += ` WHERE product_code = ?`
		args = append(args, productCode)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list postings: %w", err)
	}
	defer rows.Close()

	var out []model.InventoryPosting
	for rows.Next() {
		var (
			p       model.InventoryPosting
			typ, at string
		)
		if err := rows.Scan(&p.ID, &p.ProductCode, &p.Quantity, &typ,
			&p.Tag, &p.Remarks, &p.PostedBy, &at); err != nil {
			return nil, fmt.Errorf("list postings: %w", err)
		}
		p.Type = model.PostingType(typ)
		if p.PostedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("list postings: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
