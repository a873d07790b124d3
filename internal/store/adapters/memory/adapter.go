// Package memory implementa el adapter en memoria del store.
// Pensado para tests y ejecución local: no persiste nada entre reinicios.
//
// Cada operación toma el mutex completo, lo que da las mismas garantías
// de atomicidad por fila que las transacciones de los adapters SQL.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(_ context.Context, _ store.AdapterConfig) (store.AdapterConnection, error) {
	return New(), nil
}

// Connection guarda sesiones, required scopes y eventos de auditoría.
type Connection struct {
	mu       sync.Mutex
	sessions map[string]repository.Session // por authorization_id
	required map[string][]repository.RequiredScope

	// auditMu es independiente: los hooks de sesión y de scopes escriben
	// auditoría mientras mu está tomado.
	auditMu sync.Mutex
	audit   []repository.AuditEvent
}

// New crea una conexión vacía.
func New() *Connection {
	return &Connection{
		sessions: make(map[string]repository.Session),
		required: make(map[string][]repository.RequiredScope),
	}
}

func (c *Connection) Name() string                 { return "memory" }
func (c *Connection) Ping(_ context.Context) error { return nil }
func (c *Connection) Close() error                 { return nil }

func (c *Connection) Sessions() repository.SessionRepository {
	return (*sessionRepo)(c)
}

func (c *Connection) RequiredScopes() repository.RequiredScopeRepository {
	return (*requiredScopeRepo)(c)
}

func (c *Connection) Audit() repository.AuditRepository {
	return (*auditRepo)(c)
}

// ─── Sessions ───

type sessionRepo Connection

var _ repository.SessionRepository = (*sessionRepo)(nil)

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput, beforeCommit repository.SessionHook) (*repository.Session, error) {
	s := repository.Session{
		ID:                      uuid.NewString(),
		UserID:                  input.UserID,
		AuthorizationID:         input.AuthorizationID,
		CurrentRefreshTokenHash: input.RefreshTokenHash,
		SlidingExpiresAt:        input.SlidingExpiresAt,
		AbsoluteExpiresAt:       input.AbsoluteExpiresAt,
		CreatedAt:               input.CreatedAt,
		UpdatedAt:               input.CreatedAt,
	}
	if input.IP != "" {
		s.LastRefreshIP = &input.IP
	}
	if input.UserAgent != "" {
		s.LastRefreshUserAgent = &input.UserAgent
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.AuthorizationID]; exists {
		return nil, fmt.Errorf("create session: authorization %s: %w", s.AuthorizationID, repository.ErrConflict)
	}
	if beforeCommit != nil {
		tmp := s.Clone()
		if err := beforeCommit(ctx, &tmp); err != nil {
			return nil, err
		}
	}
	r.sessions[s.AuthorizationID] = s.Clone()
	return &s, nil
}

func (r *sessionRepo) GetByAuthorization(_ context.Context, authorizationID string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[authorizationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := s.Clone()
	return &out, nil
}

func (r *sessionRepo) ListByUser(_ context.Context, userID string) ([]repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []repository.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *sessionRepo) Mutate(ctx context.Context, authorizationID string, fn repository.SessionMutator) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[authorizationID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	work := current.Clone()
	write, err := fn(ctx, &work)
	if err != nil {
		return nil, err
	}
	if !write {
		out := current.Clone()
		return &out, nil
	}
	if current.IsRevoked() {
		return nil, fmt.Errorf("session for authorization %s is revoked: %w", authorizationID, repository.ErrConflict)
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}

	// Los campos de identidad no son mutables.
	work.ID = current.ID
	work.UserID = current.UserID
	work.AuthorizationID = current.AuthorizationID
	work.CreatedAt = current.CreatedAt

	r.sessions[authorizationID] = work.Clone()
	return &work, nil
}

// ─── Required scopes ───

type requiredScopeRepo Connection

var _ repository.RequiredScopeRepository = (*requiredScopeRepo)(nil)

func (r *requiredScopeRepo) ListByClient(_ context.Context, clientID string) ([]repository.RequiredScope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.required[clientID]), nil
}

func (r *requiredScopeRepo) Replace(ctx context.Context, input repository.ReplaceRequiredScopesInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]repository.RequiredScope, 0, len(input.ScopeIDs))
	seen := make(map[string]struct{}, len(input.ScopeIDs))
	for _, id := range input.ScopeIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("insert required scope %s: %w", id, repository.ErrConflict)
		}
		seen[id] = struct{}{}
		rows = append(rows, repository.RequiredScope{
			ClientID:  input.ClientID,
			ScopeID:   id,
			CreatedAt: input.CreatedAt,
		})
	}

	if input.BeforeCommit != nil {
		if err := input.BeforeCommit(ctx); err != nil {
			return err
		}
	}

	if len(rows) == 0 {
		delete(r.required, input.ClientID)
		return nil
	}
	r.required[input.ClientID] = rows
	return nil
}

// ─── Audit ───

type auditRepo Connection

var _ repository.AuditRepository = (*auditRepo)(nil)

func (r *auditRepo) Append(_ context.Context, ev repository.AuditEvent) error {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()
	ev.Details = slices.Clone(ev.Details)
	r.audit = append(r.audit, ev)
	return nil
}

func (r *auditRepo) ListBySubject(_ context.Context, subjectID string, limit int) ([]repository.AuditEvent, error) {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	var out []repository.AuditEvent
	for i := len(r.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if r.audit[i].SubjectID == subjectID {
			out = append(out, r.audit[i])
		}
	}
	return out, nil
}
