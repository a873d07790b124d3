package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
)

// Verificar que implementa la interfaz
var _ repository.SessionRepository = (*sessionRepo)(nil)

const sessionColumns = `
	id, user_id, authorization_id,
	current_refresh_token_hash, previous_refresh_token_hash,
	sliding_expires_at, absolute_expires_at,
	revoked_at, revocation_reason,
	last_refresh_ip, last_refresh_user_agent,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*repository.Session, error) {
	var (
		s                   repository.Session
		prevHash, reason    sql.NullString
		ip, ua              sql.NullString
		absolute, revokedAt sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.AuthorizationID,
		&s.CurrentRefreshTokenHash, &prevHash,
		&s.SlidingExpiresAt, &absolute,
		&revokedAt, &reason,
		&ip, &ua,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.PreviousRefreshTokenHash = nullStringToPtr(prevHash)
	s.AbsoluteExpiresAt = nullTimeToPtr(absolute)
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.RevocationReason = nullStringToPtr(reason)
	s.LastRefreshIP = nullStringToPtr(ip)
	s.LastRefreshUserAgent = nullStringToPtr(ua)
	s.SlidingExpiresAt = s.SlidingExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

// Create inserta una nueva sesión y corre beforeCommit dentro de la transacción.
func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput, beforeCommit repository.SessionHook) (*repository.Session, error) {
	s := &repository.Session{
		ID:                      uuid.New().String(),
		UserID:                  input.UserID,
		AuthorizationID:         input.AuthorizationID,
		CurrentRefreshTokenHash: input.RefreshTokenHash,
		SlidingExpiresAt:        input.SlidingExpiresAt,
		AbsoluteExpiresAt:       input.AbsoluteExpiresAt,
		CreatedAt:               input.CreatedAt,
		UpdatedAt:               input.CreatedAt,
	}
	if input.IP != "" {
		s.LastRefreshIP = &input.IP
	}
	if input.UserAgent != "" {
		s.LastRefreshUserAgent = &input.UserAgent
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysql: begin tx: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO authorization_sessions (
			id, user_id, authorization_id,
			current_refresh_token_hash, sliding_expires_at, absolute_expires_at,
			last_refresh_ip, last_refresh_user_agent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		s.ID, s.UserID, s.AuthorizationID,
		s.CurrentRefreshTokenHash, s.SlidingExpiresAt, ptrToNullTime(s.AbsoluteExpiresAt),
		nullIfEmpty(input.IP), nullIfEmpty(input.UserAgent), s.CreatedAt, s.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return nil, fmt.Errorf("mysql: create session: authorization %s: %w", s.AuthorizationID, repository.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: create session: %w", err)
	}

	if beforeCommit != nil {
		if err := beforeCommit(withTx(ctx, r.db, tx), s); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mysql: commit create session: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) GetByAuthorization(ctx context.Context, authorizationID string) (*repository.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM authorization_sessions WHERE authorization_id = ?`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, authorizationID))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("mysql: get session: %w", err)
	}
	return s, err
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]repository.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM authorization_sessions
		WHERE user_id = ?
		ORDER BY created_at DESC, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("mysql: list sessions: %w", err)
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql: scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Mutate bloquea la fila con SELECT ... FOR UPDATE y persiste el resultado de fn.
func (r *sessionRepo) Mutate(ctx context.Context, authorizationID string, fn repository.SessionMutator) (*repository.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysql: begin tx: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer tx.Rollback()

	query := `SELECT ` + sessionColumns + ` FROM authorization_sessions WHERE authorization_id = ? FOR UPDATE`
	current, err := scanSession(tx.QueryRowContext(ctx, query, authorizationID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("mysql: lock session: %w", err)
	}

	work := current.Clone()
	write, err := fn(withTx(ctx, r.db, tx), &work)
	if err != nil {
		return nil, err
	}
	if !write {
		return current, nil
	}
	if current.IsRevoked() {
		return nil, fmt.Errorf("mysql: session for authorization %s is revoked: %w", authorizationID, repository.ErrConflict)
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}

	const update = `
		UPDATE authorization_sessions SET
			current_refresh_token_hash = ?,
			previous_refresh_token_hash = ?,
			sliding_expires_at = ?,
			absolute_expires_at = ?,
			revoked_at = ?,
			revocation_reason = ?,
			last_refresh_ip = ?,
			last_refresh_user_agent = ?,
			updated_at = ?
		WHERE id = ? AND revoked_at IS NULL
	`
	res, err := tx.ExecContext(ctx, update,
		work.CurrentRefreshTokenHash, ptrToNullString(work.PreviousRefreshTokenHash),
		work.SlidingExpiresAt, ptrToNullTime(work.AbsoluteExpiresAt),
		ptrToNullTime(work.RevokedAt), ptrToNullString(work.RevocationReason),
		ptrToNullString(work.LastRefreshIP), ptrToNullString(work.LastRefreshUserAgent),
		work.UpdatedAt,
		current.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("mysql: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("mysql: update session: %w", repository.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mysql: commit session: %w", err)
	}
	return &work, nil
}
