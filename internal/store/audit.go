package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/suk-kr/shopfloor/internal/model"
)

// AppendAudit writes one audit log entry and returns its correlation token.
// Audit writes are fire-and-forget from the caller's perspective: a failure
// is logged and reported, never retried, and must not abort the action that
// produced it. Callers that run inside a transaction use Tx.AppendAudit so
// the entry commits or rolls back with its action.
func (s *Store) AppendAudit(ctx context.Context, userID, actionType, detail string) string {
	token, err := appendAudit(ctx, s.db, userID, actionType, detail)
	if err != nil {
		slog.Warn("audit append failed", "action", actionType, "error", err)
	}
	return token
}

// AppendAudit is the transaction-scoped variant. Unlike the standalone
// version it returns the error: inside a fulfillment unit a failed audit
// write rolls back the whole unit.
func (tx *Tx) AppendAudit(ctx context.Context, userID, actionType, detail string) (string, error) {
	return appendAudit(ctx, tx.tx, userID, actionType, detail)
}

func appendAudit(ctx context.Context, q querier, userID, actionType, detail string) (string, error) {
	token := uuid.Must(uuid.NewV7()).String()
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (token, user_id, action_type, detail, logged_at)
		VALUES (?, ?, ?, ?, ?)
	`, token, userID, actionType, detail, fmtTime(time.Now()))
	if err != nil {
		return token, fmt.Errorf("append audit %q: %w", actionType, err)
	}
	return token, nil
}

// ListAudit returns audit entries, newest first, up to limit (0 = no limit).
func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	query := `
		SELECT id, token, user_id, action_type, detail, logged_at
		FROM audit_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e  model.AuditEntry
			at string
		)
		if err := rows.Scan(&e.ID, &e.Token, &e.UserID, &e.ActionType, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		if e.LoggedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
