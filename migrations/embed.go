// Package migrations embeds SQL migration files (golang-migrate format).
package migrations

import "embed"

// PostgresFS contains the PostgreSQL migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// PostgresDir is the directory within PostgresFS where migrations live.
const PostgresDir = "postgres"

// MySQLFS contains the MySQL migrations.
//
//go:embed mysql/*.sql
var MySQLFS embed.FS

// MySQLDir is the directory within MySQLFS where migrations live.
const MySQLDir = "mysql"
