// Package pg implementa protocol.Engine leyendo las tablas del protocol engine
// en PostgreSQL (oauth_authorizations, oauth_tokens, oauth_scopes, oauth_applications).
//
// Las tablas pertenecen al engine; este paquete no las migra. Columnas esperadas:
//
//	oauth_authorizations(id, subject, application_id, status, scopes text[], creation_date)
//	oauth_tokens(id, authorization_id, type, status)
//	oauth_scopes(id, name)
//	oauth_applications(id, client_id, display_name, permissions text[])
package pg

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantkeeper/internal/protocol"
	"github.com/dropDatabas3/grantkeeper/internal/store/pgtx"
)

// Engine es el protocol.Engine respaldado por PostgreSQL.
type Engine struct {
	pool *pgxpool.Pool
}

// New crea el engine sobre un pool existente.
func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

var _ protocol.Engine = (*Engine)(nil)

// Connect abre un pool propio contra dsn.
func Connect(ctx context.Context, dsn string) (*Engine, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("protocol pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("protocol pg: ping failed: %w", errors.Join(protocol.ErrUnavailable, err))
	}
	return &Engine{pool: pool}, nil
}

// Close libera el pool.
func (e *Engine) Close() { e.pool.Close() }

// db usa la transacción del store cuando comparte pool con él.
func (e *Engine) db(ctx context.Context) pgtx.DBTX { return pgtx.From(ctx, e.pool) }

func (e *Engine) FindAuthorizationByID(ctx context.Context, id string) (*protocol.Authorization, error) {
	const query = `
		SELECT id, subject, application_id, status, COALESCE(scopes, '{}'), creation_date
		FROM oauth_authorizations WHERE id = $1
	`
	var a protocol.Authorization
	err := e.db(ctx).QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Subject, &a.ApplicationID, &a.Status, &a.Scopes, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, protocol.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find authorization", err)
	}
	return &a, nil
}

func (e *Engine) RevokeTokensByAuthorization(ctx context.Context, authorizationID string) (int, error) {
	const query = `
		UPDATE oauth_tokens SET status = 'revoked'
		WHERE authorization_id = $1 AND status <> 'revoked'
	`
	tag, err := e.db(ctx).Exec(ctx, query, authorizationID)
	if err != nil {
		return 0, unavailable("revoke tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

func (e *Engine) FindScopeByName(ctx context.Context, name string) (*protocol.ScopeRef, error) {
	// Los nombres de scope se comparan sin distinguir mayúsculas en todo el core.
	const query = `SELECT id, name FROM oauth_scopes WHERE lower(name) = lower($1) ORDER BY (name = $1) DESC LIMIT 1`
	var ref protocol.ScopeRef
	err := e.db(ctx).QueryRow(ctx, query, name).Scan(&ref.ID, &ref.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, protocol.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find scope", err)
	}
	return &ref, nil
}

func (e *Engine) ScopeID(ref protocol.ScopeRef) string   { return ref.ID }
func (e *Engine) ScopeName(ref protocol.ScopeRef) string { return ref.Name }

func (e *Engine) ListScopes(ctx context.Context) iter.Seq2[protocol.ScopeRef, error] {
	return func(yield func(protocol.ScopeRef, error) bool) {
		// Siempre sobre el pool: el iterador deja rows abiertas mientras el caller consulta.
		rows, err := e.pool.Query(ctx, `SELECT id, name FROM oauth_scopes ORDER BY name`)
		if err != nil {
			yield(protocol.ScopeRef{}, unavailable("list scopes", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var ref protocol.ScopeRef
			if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
				yield(protocol.ScopeRef{}, fmt.Errorf("scan scope: %w", err))
				return
			}
			if !yield(ref, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(protocol.ScopeRef{}, unavailable("list scopes", err))
		}
	}
}

func (e *Engine) FindApplicationByID(ctx context.Context, id string) (*protocol.Application, error) {
	const query = `
		SELECT id, client_id, COALESCE(display_name, '')
		FROM oauth_applications WHERE id = $1
	`
	var app protocol.Application
	err := e.db(ctx).QueryRow(ctx, query, id).Scan(&app.ID, &app.ClientID, &app.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, protocol.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find application", err)
	}
	return &app, nil
}

func (e *Engine) ApplicationPermissions(ctx context.Context, app *protocol.Application) ([]string, error) {
	if app == nil {
		return nil, protocol.ErrNotFound
	}
	const query = `SELECT COALESCE(permissions, '{}') FROM oauth_applications WHERE id = $1`
	var perms []string
	err := e.db(ctx).QueryRow(ctx, query, app.ID).Scan(&perms)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, protocol.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("application permissions", err)
	}
	return perms, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(protocol.ErrUnavailable, err))
}
