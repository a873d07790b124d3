package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store/pgtx"
)

// ─── RequiredScopeRepository ───

type requiredScopeRepo struct{ pool *pgxpool.Pool }

func (r *requiredScopeRepo) ListByClient(ctx context.Context, clientID string) ([]repository.RequiredScope, error) {
	const query = `
		SELECT client_id, scope_id, created_at
		FROM client_required_scopes
		WHERE client_id = $1
		ORDER BY created_at, scope_id
	`
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("list required scopes: %w", err)
	}
	defer rows.Close()

	var out []repository.RequiredScope
	for rows.Next() {
		var rs repository.RequiredScope
		if err := rows.Scan(&rs.ClientID, &rs.ScopeID, &rs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan required scope: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Replace borra el set previo e inserta el nuevo en una sola transacción.
func (r *requiredScopeRepo) Replace(ctx context.Context, input repository.ReplaceRequiredScopesInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM client_required_scopes WHERE client_id = $1`, input.ClientID); err != nil {
		return fmt.Errorf("delete required scopes: %w", err)
	}

	const insert = `INSERT INTO client_required_scopes (client_id, scope_id, created_at) VALUES ($1, $2, $3)`
	for _, scopeID := range input.ScopeIDs {
		if _, err := tx.Exec(ctx, insert, input.ClientID, scopeID, input.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert required scope %s: %w", scopeID, repository.ErrConflict)
			}
			return fmt.Errorf("insert required scope: %w", err)
		}
	}

	if input.BeforeCommit != nil {
		if err := input.BeforeCommit(pgtx.WithTx(ctx, r.pool, tx)); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit required scopes: %w", err)
	}
	return nil
}

// ─── AuditRepository ───

type auditRepo struct{ pool *pgxpool.Pool }

// Append se une a la transacción de ctx si la hay, así el evento se confirma
// o se descarta junto con la escritura que lo origina.
func (r *auditRepo) Append(ctx context.Context, ev repository.AuditEvent) error {
	const query = `
		INSERT INTO audit_events (id, event_type, subject_id, details, ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := pgtx.From(ctx, r.pool).Exec(ctx, query,
		ev.ID, ev.Type, ev.SubjectID, ev.Details,
		nullIfEmpty(ev.IP), nullIfEmpty(ev.UserAgent), ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
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
		WHERE subject_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []repository.AuditEvent
	for rows.Next() {
		var ev repository.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.SubjectID, &ev.Details, &ev.IP, &ev.UserAgent, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
