// Package protocol define el contrato con el protocol engine OAuth2/OIDC.
//
// El engine es dueño de autorizaciones, tokens, scopes y aplicaciones. Este core
// solo lo consulta (y le pide revocar tokens); nunca emite ni firma tokens.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
)

// PermissionScopePrefix distingue los permisos de scope dentro de los permisos
// de una aplicación: el permiso del scope "email" es "scp:email".
const PermissionScopePrefix = "scp:"

var (
	// ErrNotFound indica que la entidad no existe en el engine.
	ErrNotFound = fmt.Errorf("protocol: %w", repository.ErrNotFound)

	// ErrUnavailable indica que el engine no respondió.
	ErrUnavailable = fmt.Errorf("protocol engine: %w", repository.ErrUnavailable)
)

// Authorization es el registro del engine que une usuario, client y scopes otorgados.
type Authorization struct {
	ID            string
	Subject       string
	ApplicationID string
	Status        string
	Scopes        []string
	CreatedAt     time.Time
}

// ScopeRef es el handle de un scope tal como lo resuelve el engine.
type ScopeRef struct {
	ID   string
	Name string
}

// Application es un client OAuth registrado en el engine.
type Application struct {
	ID          string
	ClientID    string
	DisplayName string
}

// Engine es el subconjunto del protocol engine que consume este core.
type Engine interface {
	// FindAuthorizationByID retorna ErrNotFound si no existe.
	FindAuthorizationByID(ctx context.Context, id string) (*Authorization, error)

	// RevokeTokensByAuthorization revoca access + refresh tokens de la autorización
	// y retorna cuántos pasaron a revocados.
	RevokeTokensByAuthorization(ctx context.Context, authorizationID string) (int, error)

	// FindScopeByName retorna ErrNotFound si el scope no existe.
	FindScopeByName(ctx context.Context, name string) (*ScopeRef, error)

	// ScopeID y ScopeName resuelven los campos del handle sin I/O.
	ScopeID(ref ScopeRef) string
	ScopeName(ref ScopeRef) string

	// ListScopes itera todos los scopes conocidos.
	ListScopes(ctx context.Context) iter.Seq2[ScopeRef, error]

	// FindApplicationByID retorna ErrNotFound si no existe.
	FindApplicationByID(ctx context.Context, id string) (*Application, error)

	// ApplicationPermissions retorna los permisos crudos (ej: "scp:email", "gt:refresh_token").
	ApplicationPermissions(ctx context.Context, app *Application) ([]string, error)
}

// ScopeNameFromPermission extrae el nombre de scope de un permiso "scp:<name>".
func ScopeNameFromPermission(permission string) (string, bool) {
	if len(permission) <= len(PermissionScopePrefix) {
		return "", false
	}
	if !strings.EqualFold(permission[:len(PermissionScopePrefix)], PermissionScopePrefix) {
		return "", false
	}
	return permission[len(PermissionScopePrefix):], true
}

// AllowedScopes filtra los permisos de scope y devuelve los nombres.
func AllowedScopes(permissions []string) []string {
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if name, ok := ScopeNameFromPermission(p); ok {
			out = append(out, name)
		}
	}
	return out
}

// IsNotFound verifica si err proviene de una entidad inexistente en el engine.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
