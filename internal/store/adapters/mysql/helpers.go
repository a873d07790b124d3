// Package mysql contiene utilidades compartidas para los repositorios MySQL.
package mysql

import (
	"database/sql"
	"errors"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry es el código de error de MySQL para UNIQUE/PRIMARY KEY duplicada.
const mysqlDuplicateEntry = 1062

// ─────────────────────────────────────────────────────────────────────────────
// Conversión de tipos NULL
// MySQL usa sql.NullXXX types para manejar valores NULL.
// ─────────────────────────────────────────────────────────────────────────────

// nullIfEmpty returns sql.NullString for optional string fields.
// Si el string está vacío, retorna un NullString inválido (NULL en DB).
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ptrToNullString convierte *string a sql.NullString.
func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringToPtr convierte sql.NullString a *string.
func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// ptrToNullTime convierte *time.Time a sql.NullTime.
func ptrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeToPtr convierte sql.NullTime a *time.Time (siempre UTC).
func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// isDuplicateEntry detecta violaciones de clave única.
func isDuplicateEntry(err error) bool {
	var myErr *mysqldrv.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
