// Package pgtx propaga la transacción pgx abierta por un repositorio a los
// colaboradores que el callback invoca (audit sink db, protocol engine) para
// que escriban en la misma conexión en lugar de pedir otra al pool.
package pgtx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX es lo común entre *pgxpool.Pool y pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

type ctxKey struct{}

type bound struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// WithTx marca ctx con la transacción tx abierta sobre pool.
func WithTx(ctx context.Context, pool *pgxpool.Pool, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, ctxKey{}, bound{pool: pool, tx: tx})
}

// From retorna la transacción de ctx si fue abierta sobre el mismo pool;
// si no, el pool. Un pool distinto (otra base) nunca se une a la transacción.
func From(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if b, ok := ctx.Value(ctxKey{}).(bound); ok && b.pool == pool && b.tx != nil {
		return b.tx
	}
	return pool
}

// InTx indica si ctx lleva una transacción abierta sobre pool.
func InTx(ctx context.Context, pool *pgxpool.Pool) bool {
	b, ok := ctx.Value(ctxKey{}).(bound)
	return ok && b.pool == pool && b.tx != nil
}
