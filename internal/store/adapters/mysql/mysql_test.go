package mysql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store"
	_ "github.com/dropDatabas3/grantkeeper/internal/store/adapters/mysql"
)

func TestMySQLAdapterRegistered(t *testing.T) {
	adapter, ok := store.GetAdapter("mysql")
	require.True(t, ok, "MySQL adapter not registered")
	assert.Equal(t, "mysql", adapter.Name())
}

func TestMySQLAdapterConnectRequiresDSN(t *testing.T) {
	adapter, ok := store.GetAdapter("mysql")
	require.True(t, ok, "MySQL adapter not registered")

	_, err := adapter.Connect(context.Background(), store.AdapterConfig{})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}
