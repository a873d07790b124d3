package mysql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_JoinsTxOfSameDB(t *testing.T) {
	db, other := new(sql.DB), new(sql.DB)
	tx := new(sql.Tx)

	ctx := context.Background()
	assert.Same(t, db, conn(ctx, db))

	ctx = withTx(ctx, db, tx)
	assert.Same(t, tx, conn(ctx, db))
	assert.Same(t, other, conn(ctx, other))
}

// countingRow verifica que scanSession pida una columna por destino.
type countingRow struct{ n int }

func (r *countingRow) Scan(dest ...any) error {
	r.n = len(dest)
	return nil
}

func TestScanSession_OneDestinationPerColumn(t *testing.T) {
	row := &countingRow{}
	_, err := scanSession(row)
	require.NoError(t, err)
	assert.Equal(t, 13, row.n)
}
