package store

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/dropDatabas3/grantkeeper/migrations"
)

// ErrNoChange se devuelve cuando no hay migraciones para aplicar.
var ErrNoChange = migrate.ErrNoChange

// Direcciones de migración.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate aplica las migraciones embebidas del driver en la dirección dada.
// dsn puede venir en el formato del driver; se normaliza con MigrationDSN.
// Retorna nil si ya estaba en la versión objetivo.
func Migrate(driver, dsn, direction string) error {
	if dsn == "" {
		return errors.New("migrate: dsn is empty")
	}
	if direction != MigrateUp && direction != MigrateDown {
		return fmt.Errorf("migrate: direction must be up or down, got %q", direction)
	}

	dsn = MigrationDSN(driver, dsn)

	src, err := migrationSource(driver)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}

// MigrationDSN adapta el DSN del store al esquema que espera golang-migrate.
// go-sql-driver/mysql no usa prefijo; migrate exige "mysql://".
func MigrationDSN(driver, dsn string) string {
	if driver == "mysql" && !strings.HasPrefix(dsn, "mysql://") {
		return "mysql://" + dsn
	}
	return dsn
}

func migrationSource(driver string) (fs.FS, error) {
	switch driver {
	case "postgres":
		return fs.Sub(migrations.PostgresFS, migrations.PostgresDir)
	case "mysql":
		return fs.Sub(migrations.MySQLFS, migrations.MySQLDir)
	default:
		return nil, fmt.Errorf("migrate: driver %q has no migrations", driver)
	}
}
