package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store/pgtx"
)

var _ repository.SessionRepository = (*sessionRepo)(nil)

// sessionRepo implementa repository.SessionRepository sobre authorization_sessions.
type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionColumns = `
	id, user_id, authorization_id,
	current_refresh_token_hash, previous_refresh_token_hash,
	sliding_expires_at, absolute_expires_at,
	revoked_at, revocation_reason,
	last_refresh_ip, last_refresh_user_agent,
	created_at, updated_at`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.AuthorizationID,
		&s.CurrentRefreshTokenHash, &s.PreviousRefreshTokenHash,
		&s.SlidingExpiresAt, &s.AbsoluteExpiresAt,
		&s.RevokedAt, &s.RevocationReason,
		&s.LastRefreshIP, &s.LastRefreshUserAgent,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserta la sesión y corre beforeCommit dentro de la misma transacción.
func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput, beforeCommit repository.SessionHook) (*repository.Session, error) {
	s := &repository.Session{
		ID:                      uuid.NewString(),
		UserID:                  input.UserID,
		AuthorizationID:         input.AuthorizationID,
		CurrentRefreshTokenHash: input.RefreshTokenHash,
		SlidingExpiresAt:        input.SlidingExpiresAt,
		AbsoluteExpiresAt:       input.AbsoluteExpiresAt,
		LastRefreshIP:           nullIfEmpty(input.IP),
		LastRefreshUserAgent:    nullIfEmpty(input.UserAgent),
		CreatedAt:               input.CreatedAt,
		UpdatedAt:               input.CreatedAt,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO authorization_sessions (
			id, user_id, authorization_id,
			current_refresh_token_hash, sliding_expires_at, absolute_expires_at,
			last_refresh_ip, last_refresh_user_agent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = tx.Exec(ctx, query,
		s.ID, s.UserID, s.AuthorizationID,
		s.CurrentRefreshTokenHash, s.SlidingExpiresAt, s.AbsoluteExpiresAt,
		s.LastRefreshIP, s.LastRefreshUserAgent, s.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("create session: authorization %s: %w", s.AuthorizationID, repository.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if beforeCommit != nil {
		if err := beforeCommit(pgtx.WithTx(ctx, r.pool, tx), s); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) GetByAuthorization(ctx context.Context, authorizationID string) (*repository.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM authorization_sessions WHERE authorization_id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, authorizationID))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, err
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]repository.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM authorization_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Mutate bloquea la fila (FOR UPDATE), aplica fn sobre una copia y persiste
// si fn lo pide. Las filas revocadas son inmutables.
func (r *sessionRepo) Mutate(ctx context.Context, authorizationID string, fn repository.SessionMutator) (*repository.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + sessionColumns + ` FROM authorization_sessions WHERE authorization_id = $1 FOR UPDATE`
	current, err := scanSession(tx.QueryRow(ctx, query, authorizationID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}

	work := current.Clone()
	// El callback escribe audit (y revoca tokens) sobre esta misma transacción.
	write, err := fn(pgtx.WithTx(ctx, r.pool, tx), &work)
	if err != nil {
		return nil, err
	}
	if !write {
		return current, nil
	}
	if current.IsRevoked() {
		return nil, fmt.Errorf("session for authorization %s is revoked: %w", authorizationID, repository.ErrConflict)
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}

	const update = `
		UPDATE authorization_sessions SET
			current_refresh_token_hash = $2,
			previous_refresh_token_hash = $3,
			sliding_expires_at = $4,
			absolute_expires_at = $5,
			revoked_at = $6,
			revocation_reason = $7,
			last_refresh_ip = $8,
			last_refresh_user_agent = $9,
			updated_at = $10
		WHERE id = $1 AND revoked_at IS NULL
	`
	tag, err := tx.Exec(ctx, update,
		current.ID,
		work.CurrentRefreshTokenHash, work.PreviousRefreshTokenHash,
		work.SlidingExpiresAt, work.AbsoluteExpiresAt,
		work.RevokedAt, work.RevocationReason,
		work.LastRefreshIP, work.LastRefreshUserAgent,
		work.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("update session: %w", repository.ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return &work, nil
}
