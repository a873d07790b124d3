package repository

import (
	"context"
	"fmt"
	"time"
)

// Estados calculados de una sesión.
const (
	SessionStatusActive  = "active"
	SessionStatusExpired = "expired"
	SessionStatusRevoked = "revoked"
)

// Session es la fila de tracking de una autorización OAuth: estado del refresh
// token vigente y ventanas de expiración. Nunca se borra físicamente.
type Session struct {
	ID              string
	UserID          string
	AuthorizationID string // FK a la autorización del protocol engine (única)

	// Hashes con clave del refresh token vigente y del inmediatamente anterior.
	// El anterior existe solo para tolerar refresh concurrentes.
	CurrentRefreshTokenHash  string
	PreviousRefreshTokenHash *string

	SlidingExpiresAt  time.Time
	AbsoluteExpiresAt *time.Time

	RevokedAt        *time.Time
	RevocationReason *string

	LastRefreshIP        *string
	LastRefreshUserAgent *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRevoked indica si la sesión está en estado terminal.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// Status calcula el estado de la sesión a un instante dado.
func (s *Session) Status(now time.Time) string {
	if s.RevokedAt != nil {
		return SessionStatusRevoked
	}
	if !now.Before(s.SlidingExpiresAt) {
		return SessionStatusExpired
	}
	if s.AbsoluteExpiresAt != nil && !now.Before(*s.AbsoluteExpiresAt) {
		return SessionStatusExpired
	}
	return SessionStatusActive
}

// Validate verifica los invariantes de fila antes de persistir.
func (s *Session) Validate() error {
	if s.AuthorizationID == "" || s.UserID == "" {
		return fmt.Errorf("session: user and authorization required: %w", ErrInvalidInput)
	}
	if s.RevokedAt == nil && s.CurrentRefreshTokenHash == "" {
		return fmt.Errorf("session: current refresh hash required while active: %w", ErrInvalidInput)
	}
	if s.AbsoluteExpiresAt != nil && s.SlidingExpiresAt.After(*s.AbsoluteExpiresAt) {
		return fmt.Errorf("session: sliding expiry past absolute expiry: %w", ErrInvalidInput)
	}
	return nil
}

// Clone devuelve una copia profunda (los punteros no se comparten).
func (s Session) Clone() Session {
	out := s
	out.PreviousRefreshTokenHash = clonePtr(s.PreviousRefreshTokenHash)
	out.AbsoluteExpiresAt = clonePtr(s.AbsoluteExpiresAt)
	out.RevokedAt = clonePtr(s.RevokedAt)
	out.RevocationReason = clonePtr(s.RevocationReason)
	out.LastRefreshIP = clonePtr(s.LastRefreshIP)
	out.LastRefreshUserAgent = clonePtr(s.LastRefreshUserAgent)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CreateSessionInput contiene los datos para crear la sesión de una autorización nueva.
type CreateSessionInput struct {
	UserID            string
	AuthorizationID   string
	RefreshTokenHash  string
	SlidingExpiresAt  time.Time
	AbsoluteExpiresAt *time.Time
	IP                string
	UserAgent         string
	CreatedAt         time.Time
}

// SessionHook se ejecuta dentro de la transacción, antes del commit.
// Si retorna error la transacción se descarta.
type SessionHook func(ctx context.Context, s *Session) error

// SessionMutator recibe una copia de la fila bloqueada y la modifica in-place.
// write=false descarta sin escribir; un error hace rollback y se propaga tal cual.
type SessionMutator func(ctx context.Context, s *Session) (write bool, err error)

// SessionRepository define el acceso a la tabla authorization_sessions.
//
// Mutate es el único camino de escritura sobre filas existentes: los adapters
// ejecutan lectura + callback + update en una sola transacción y rechazan con
// ErrConflict cualquier escritura sobre una fila ya revocada.
type SessionRepository interface {
	// Create inserta la sesión. Retorna ErrConflict si ya existe una para la autorización.
	// beforeCommit puede ser nil.
	Create(ctx context.Context, input CreateSessionInput, beforeCommit SessionHook) (*Session, error)

	// GetByAuthorization retorna ErrNotFound si no existe.
	GetByAuthorization(ctx context.Context, authorizationID string) (*Session, error)

	// ListByUser lista todas las sesiones del usuario, más recientes primero.
	ListByUser(ctx context.Context, userID string) ([]Session, error)

	// Mutate aplica fn sobre la fila de authorizationID de forma atómica.
	// Retorna la fila resultante (modificada o no). ErrNotFound si no existe.
	Mutate(ctx context.Context, authorizationID string, fn SessionMutator) (*Session, error)
}
