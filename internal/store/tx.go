package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx is a transaction-scoped view of the store. All reads and writes made
// through a Tx commit together or not at all; the fulfillment coordinator
// relies on this as its unit of mutual exclusion.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single transaction. If fn returns an error the
// transaction is rolled back and the error is returned wrapped; otherwise
// the transaction commits.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Timestamp formats. Instants are RFC 3339 UTC; document dates are
// date-only. Both are TEXT columns, compared lexically by SQLite.
const (
	timeFormat = time.RFC3339
	dateFormat = "2006-01-02"
)

func fmtTime(t time.Time) string { return t.UTC().Format(timeFormat) }
func fmtDate(t time.Time) string { return t.Format(dateFormat) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", s, err)
	}
	return t, nil
}

// nullTime converts an optional timestamp column to *time.Time.
func nullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
