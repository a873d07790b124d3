package mysql

import (
	"context"
	"database/sql"
)

// execer es lo común entre *sql.DB y *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

type boundTx struct {
	db *sql.DB
	tx *sql.Tx
}

// withTx marca ctx con la transacción abierta por un repositorio; los callbacks
// que reciben ese ctx (audit db) escriben sobre ella y no piden otra conexión.
func withTx(ctx context.Context, db *sql.DB, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, boundTx{db: db, tx: tx})
}

// conn retorna la transacción de ctx si se abrió sobre db; si no, db.
func conn(ctx context.Context, db *sql.DB) execer {
	if b, ok := ctx.Value(txKey{}).(boundTx); ok && b.db == db && b.tx != nil {
		return b.tx
	}
	return db
}
