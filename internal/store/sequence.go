package store

import (
	"context"
	"fmt"
	"time"
)

// NextSequence allocates the next document sequence for (prefix, date) and
// returns it. The allocation is an atomic upsert-and-increment against the
// sequences table inside the caller's transaction, so two concurrent issuers
// can never observe the same value. This replaces max+1 scans over the
// document tables, which race under concurrent issuance.
func (tx *Tx) NextSequence(ctx context.Context, prefix string, date time.Time) (int, error) {
	var seq int
	err := tx.tx.QueryRowContext(ctx, `
		INSERT INTO sequences (prefix, day, next_seq)
		VALUES (?, ?, 1)
		ON CONFLICT(prefix, day) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq
	`, prefix, fmtDate(date)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence %s/%s: %w", prefix, fmtDate(date), err)
	}
	return seq, nil
}
