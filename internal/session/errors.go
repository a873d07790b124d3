package session

import (
	"fmt"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
)

// Errores del manager. Todos envuelven un sentinel de repository para que las
// capas superiores clasifiquen con errors.Is (NotFound, Conflict, ...).
var (
	ErrInvalidInput          = fmt.Errorf("session: %w", repository.ErrInvalidInput)
	ErrSessionNotFound       = fmt.Errorf("session %w", repository.ErrNotFound)
	ErrAuthorizationNotFound = fmt.Errorf("authorization %w", repository.ErrNotFound)
	ErrSessionExists         = fmt.Errorf("session already exists for authorization: %w", repository.ErrConflict)
	ErrSessionRevoked        = fmt.Errorf("session revoked: %w", repository.ErrConflict)
	ErrSessionExpired        = fmt.Errorf("session expired: %w", repository.ErrConflict)
	ErrTokenReuseDetected    = fmt.Errorf("refresh token reuse detected: %w", repository.ErrConflict)
	ErrAuditUnavailable      = fmt.Errorf("audit sink: %w", repository.ErrUnavailable)
	ErrEngineUnavailable     = fmt.Errorf("protocol engine: %w", repository.ErrUnavailable)
)
