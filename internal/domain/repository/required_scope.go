package repository

import (
	"context"
	"time"
)

// RequiredScope marca un scope como obligatorio en el consent de un client.
type RequiredScope struct {
	ClientID  string
	ScopeID   string // id del scope en el protocol engine, no el nombre
	CreatedAt time.Time
}

// ReplaceRequiredScopesInput reemplaza el set completo de un client.
type ReplaceRequiredScopesInput struct {
	ClientID  string
	ScopeIDs  []string
	CreatedAt time.Time

	// BeforeCommit corre dentro de la transacción (ej: evento de auditoría).
	BeforeCommit func(ctx context.Context) error
}

// RequiredScopeRepository define operaciones sobre client_required_scopes.
type RequiredScopeRepository interface {
	// ListByClient retorna el set actual (vacío es válido).
	ListByClient(ctx context.Context, clientID string) ([]RequiredScope, error)

	// Replace borra las filas previas e inserta las nuevas en una sola transacción.
	Replace(ctx context.Context, input ReplaceRequiredScopesInput) error
}
