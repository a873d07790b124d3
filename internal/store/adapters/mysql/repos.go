package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
)

// ─────────────────────────────────────────────────────────────────────────────
// RequiredScopeRepository
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.RequiredScopeRepository = (*requiredScopeRepo)(nil)

func (r *requiredScopeRepo) ListByClient(ctx context.Context, clientID string) ([]repository.RequiredScope, error) {
	const query = `
		SELECT client_id, scope_id, created_at
		FROM client_required_scopes
		WHERE client_id = ?
		ORDER BY created_at, scope_id
	`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("mysql: list required scopes: %w", err)
	}
	defer rows.Close()

	var out []repository.RequiredScope
	for rows.Next() {
		var rs repository.RequiredScope
		if err := rows.Scan(&rs.ClientID, &rs.ScopeID, &rs.CreatedAt); err != nil {
			return nil, fmt.Errorf("mysql: scan required scope: %w", err)
		}
		rs.CreatedAt = rs.CreatedAt.UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (r *requiredScopeRepo) Replace(ctx context.Context, input repository.ReplaceRequiredScopesInput) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin tx: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM client_required_scopes WHERE client_id = ?`, input.ClientID); err != nil {
		return fmt.Errorf("mysql: delete required scopes: %w", err)
	}

	const insert = `INSERT INTO client_required_scopes (client_id, scope_id, created_at) VALUES (?, ?, ?)`
	for _, scopeID := range input.ScopeIDs {
		if _, err := tx.ExecContext(ctx, insert, input.ClientID, scopeID, input.CreatedAt); err != nil {
			if isDuplicateEntry(err) {
				return fmt.Errorf("mysql: insert required scope %s: %w", scopeID, repository.ErrConflict)
			}
			return fmt.Errorf("mysql: insert required scope: %w", err)
		}
	}

	if input.BeforeCommit != nil {
		if err := input.BeforeCommit(withTx(ctx, r.db, tx)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit required scopes: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// AuditRepository
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.AuditRepository = (*auditRepo)(nil)

// Append escribe sobre la transacción de ctx cuando la hay.
func (r *auditRepo) Append(ctx context.Context, ev repository.AuditEvent) error {
	const query = `
		INSERT INTO audit_events (id, event_type, subject_id, details, ip, user_agent, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	details := ev.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		ev.ID, ev.Type, ev.SubjectID, details,
		nullIfEmpty(ev.IP), nullIfEmpty(ev.UserAgent), ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("mysql: append audit event: %w", err)
	}
	return nil
}

func (r *auditRepo) ListBySubject(ctx context.Context, subjectID string, limit int) ([]repository.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, event_type, subject_id, details, COALESCE(ip, ''), COALESCE(user_agent, ''), occurred_at
		FROM audit_events
		WHERE subject_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("mysql: list audit events: %w", err)
	}
	defer rows.Close()

	var out []repository.AuditEvent
	for rows.Next() {
		var ev repository.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.SubjectID, &ev.Details, &ev.IP, &ev.UserAgent, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("mysql: scan audit event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
