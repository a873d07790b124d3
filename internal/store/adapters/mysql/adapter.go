// Package mysql implementa el adapter MySQL del store.
// Usa database/sql con github.com/go-sql-driver/mysql.
//
// Requisitos:
//   - MySQL 8.0+ (SELECT ... FOR UPDATE sobre InnoDB, columnas JSON)
//   - DSN format: user:password@tcp(host:port)/database?parseTime=true
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store"
)

func init() {
	store.RegisterAdapter(&mysqlAdapter{})
}

// mysqlAdapter implementa store.Adapter para MySQL.
type mysqlAdapter struct{}

func (a *mysqlAdapter) Name() string { return "mysql" }

func (a *mysqlAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql: empty DSN: %w", repository.ErrInvalidInput)
	}

	// El DSN debe incluir parseTime=true para que los timestamps se conviertan a time.Time
	// Ejemplo: user:password@tcp(localhost:3306)/dbname?parseTime=true
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	// Configurar pool de conexiones
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Verificar conectividad
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping failed: %w", errors.Join(repository.ErrUnavailable, err))
	}

	return &mysqlConnection{db: db}, nil
}

// mysqlConnection representa una conexión activa a MySQL.
// Implementa store.AdapterConnection.
type mysqlConnection struct {
	db *sql.DB
}

func (c *mysqlConnection) Name() string { return "mysql" }

func (c *mysqlConnection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *mysqlConnection) Close() error {
	return c.db.Close()
}

// ─── Repositorios ───

func (c *mysqlConnection) Sessions() repository.SessionRepository {
	return &sessionRepo{db: c.db}
}

func (c *mysqlConnection) RequiredScopes() repository.RequiredScopeRepository {
	return &requiredScopeRepo{db: c.db}
}

func (c *mysqlConnection) Audit() repository.AuditRepository {
	return &auditRepo{db: c.db}
}

type sessionRepo struct{ db *sql.DB }
type requiredScopeRepo struct{ db *sql.DB }
type auditRepo struct{ db *sql.DB }
