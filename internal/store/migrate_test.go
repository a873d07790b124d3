package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationDSN(t *testing.T) {
	assert.Equal(t, "mysql://u:p@tcp(db:3306)/gk", MigrationDSN("mysql", "u:p@tcp(db:3306)/gk"))
	assert.Equal(t, "mysql://u:p@tcp(db:3306)/gk", MigrationDSN("mysql", "mysql://u:p@tcp(db:3306)/gk"))
	assert.Equal(t, "postgres://u:p@db/gk", MigrationDSN("postgres", "postgres://u:p@db/gk"))
}

func TestMigrate_Validation(t *testing.T) {
	err := Migrate("postgres", "", MigrateUp)
	require.Error(t, err)

	err = Migrate("postgres", "postgres://x", "sideways")
	assert.ErrorContains(t, err, "direction")

	err = Migrate("memory", "memory://", MigrateUp)
	assert.ErrorContains(t, err, "no migrations")
}

func TestMigrationSources(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql"} {
		src, err := migrationSource(driver)
		require.NoError(t, err, driver)
		require.NotNil(t, src)
	}
}
