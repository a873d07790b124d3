// Package pg implementa el adapter PostgreSQL del store.
// Usa pgxpool directamente; cada escritura corre en su propia transacción.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store"
)

func init() {
	store.RegisterAdapter(&postgresAdapter{})
}

// pgUniqueViolation es el SQLSTATE de violación de UNIQUE/PRIMARY KEY.
const pgUniqueViolation = "23505"

// nullIfEmpty returns nil if the string is empty, otherwise returns the string pointer.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// postgresAdapter implementa store.Adapter para PostgreSQL.
type postgresAdapter struct{}

func (a *postgresAdapter) Name() string { return "postgres" }

func (a *postgresAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pg: empty DSN: %w", repository.ErrInvalidInput)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}

	// Configurar pool
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}

	// Verificar conexión
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", errors.Join(repository.ErrUnavailable, err))
	}

	return NewConnection(pool), nil
}

// Connection representa una conexión activa a PostgreSQL.
type Connection struct {
	pool *pgxpool.Pool
}

// NewConnection envuelve un pool existente (el protocol engine pg puede compartirlo).
func NewConnection(pool *pgxpool.Pool) *Connection {
	return &Connection{pool: pool}
}

// Pool expone el pool subyacente.
func (c *Connection) Pool() *pgxpool.Pool { return c.pool }

func (c *Connection) Name() string { return "postgres" }

func (c *Connection) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Connection) Close() error {
	c.pool.Close()
	return nil
}

// ─── Repositorios ───

func (c *Connection) Sessions() repository.SessionRepository {
	return &sessionRepo{pool: c.pool}
}

func (c *Connection) RequiredScopes() repository.RequiredScopeRepository {
	return &requiredScopeRepo{pool: c.pool}
}

func (c *Connection) Audit() repository.AuditRepository {
	return &auditRepo{pool: c.pool}
}
