package scopes

import (
	"fmt"
	"strings"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
)

var (
	ErrInvalidScopeSet   = fmt.Errorf("scopes: invalid scope set: %w", repository.ErrInvalidInput)
	ErrClientNotFound    = fmt.Errorf("client %w", repository.ErrNotFound)
	ErrScopeNotFound     = fmt.Errorf("scope %w", repository.ErrNotFound)
	ErrScopeNotAllowed   = fmt.Errorf("scope not allowed: %w", repository.ErrConflict)
	ErrConsentTampered   = fmt.Errorf("consent tampered: %w", repository.ErrConflict)
	ErrAuditUnavailable  = fmt.Errorf("audit sink: %w", repository.ErrUnavailable)
	ErrEngineUnavailable = fmt.Errorf("protocol engine: %w", repository.ErrUnavailable)
)

// ScopeError identifica el scope que hizo fallar la validación de un set.
// Err es ErrScopeNotFound o ErrScopeNotAllowed.
type ScopeError struct {
	Scope string
	Err   error
}

func (e *ScopeError) Error() string {
	switch e.Err {
	case ErrScopeNotAllowed:
		return fmt.Sprintf("scope %q is not in the client's allowed scopes", e.Scope)
	case ErrScopeNotFound:
		return fmt.Sprintf("scope %q not found", e.Scope)
	default:
		return fmt.Sprintf("scope %q: %v", e.Scope, e.Err)
	}
}

func (e *ScopeError) Unwrap() error { return e.Err }

// ConsentTamperingError se devuelve cuando el consent enviado omite scopes requeridos.
type ConsentTamperingError struct {
	ClientID string
	Missing  []string
}

func (e *ConsentTamperingError) Error() string {
	return fmt.Sprintf("consent for client %q omits required scopes: %s", e.ClientID, strings.Join(e.Missing, " "))
}

func (e *ConsentTamperingError) Unwrap() error { return ErrConsentTampered }
