// Package memory implementa protocol.Engine en memoria, para tests y ejecución local.
package memory

import (
	"context"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantkeeper/internal/protocol"
)

type token struct {
	authorizationID string
	revoked         bool
}

// Engine guarda autorizaciones, tokens, scopes y aplicaciones en mapas.
type Engine struct {
	mu             sync.RWMutex
	authorizations map[string]protocol.Authorization
	tokens         map[string]*token
	scopes         map[string]protocol.ScopeRef // por nombre
	apps           map[string]protocol.Application
	permissions    map[string][]string

	// err, si no es nil, se devuelve en todas las operaciones (simula caída).
	err error
}

var _ protocol.Engine = (*Engine)(nil)

// New crea un engine vacío.
func New() *Engine {
	return &Engine{
		authorizations: make(map[string]protocol.Authorization),
		tokens:         make(map[string]*token),
		scopes:         make(map[string]protocol.ScopeRef),
		apps:           make(map[string]protocol.Application),
		permissions:    make(map[string][]string),
	}
}

// ─── Seeding ───

// AddAuthorization registra una autorización válida. Si id es vacío se genera uno.
func (e *Engine) AddAuthorization(id, subject, applicationID string, scopes ...string) protocol.Authorization {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	a := protocol.Authorization{
		ID:            id,
		Subject:       subject,
		ApplicationID: applicationID,
		Status:        "valid",
		Scopes:        slices.Clone(scopes),
		CreatedAt:     time.Now().UTC(),
	}
	e.authorizations[id] = a
	return a
}

// IssueTokens asocia n tokens vigentes a la autorización.
func (e *Engine) IssueTokens(authorizationID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for range n {
		e.tokens[uuid.NewString()] = &token{authorizationID: authorizationID}
	}
}

// AddScope registra un scope y devuelve su handle.
func (e *Engine) AddScope(name string) protocol.ScopeRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref, ok := e.scopes[name]; ok {
		return ref
	}
	ref := protocol.ScopeRef{ID: uuid.NewString(), Name: name}
	e.scopes[name] = ref
	return ref
}

// RemoveScope elimina un scope del engine.
func (e *Engine) RemoveScope(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scopes, name)
}

// AddApplication registra una aplicación con sus permisos crudos.
func (e *Engine) AddApplication(id, clientID string, permissions ...string) protocol.Application {
	e.mu.Lock()
	defer e.mu.Unlock()
	app := protocol.Application{ID: id, ClientID: clientID, DisplayName: clientID}
	e.apps[id] = app
	e.permissions[id] = slices.Clone(permissions)
	return app
}

// SetPermissions reemplaza los permisos de una aplicación existente.
func (e *Engine) SetPermissions(applicationID string, permissions ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permissions[applicationID] = slices.Clone(permissions)
}

// SetError hace que todas las operaciones fallen con err (nil restaura).
func (e *Engine) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// ActiveTokens cuenta los tokens no revocados de una autorización.
func (e *Engine) ActiveTokens(authorizationID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, t := range e.tokens {
		if t.authorizationID == authorizationID && !t.revoked {
			n++
		}
	}
	return n
}

// ─── protocol.Engine ───

func (e *Engine) FindAuthorizationByID(_ context.Context, id string) (*protocol.Authorization, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.err != nil {
		return nil, e.err
	}
	a, ok := e.authorizations[id]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	a.Scopes = slices.Clone(a.Scopes)
	return &a, nil
}

func (e *Engine) RevokeTokensByAuthorization(_ context.Context, authorizationID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return 0, e.err
	}
	n := 0
	for _, t := range e.tokens {
		if t.authorizationID == authorizationID && !t.revoked {
			t.revoked = true
			n++
		}
	}
	if a, ok := e.authorizations[authorizationID]; ok {
		a.Status = "revoked"
		e.authorizations[authorizationID] = a
	}
	return n, nil
}

func (e *Engine) FindScopeByName(_ context.Context, name string) (*protocol.ScopeRef, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.err != nil {
		return nil, e.err
	}
	if ref, ok := e.scopes[name]; ok {
		return &ref, nil
	}
	for n, ref := range e.scopes {
		if strings.EqualFold(n, name) {
			return &ref, nil
		}
	}
	return nil, protocol.ErrNotFound
}

func (e *Engine) ScopeID(ref protocol.ScopeRef) string   { return ref.ID }
func (e *Engine) ScopeName(ref protocol.ScopeRef) string { return ref.Name }

func (e *Engine) ListScopes(_ context.Context) iter.Seq2[protocol.ScopeRef, error] {
	e.mu.RLock()
	err := e.err
	refs := make([]protocol.ScopeRef, 0, len(e.scopes))
	for _, ref := range e.scopes {
		refs = append(refs, ref)
	}
	e.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	return func(yield func(protocol.ScopeRef, error) bool) {
		if err != nil {
			yield(protocol.ScopeRef{}, err)
			return
		}
		for _, ref := range refs {
			if !yield(ref, nil) {
				return
			}
		}
	}
}

func (e *Engine) FindApplicationByID(_ context.Context, id string) (*protocol.Application, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.err != nil {
		return nil, e.err
	}
	app, ok := e.apps[id]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	return &app, nil
}

func (e *Engine) ApplicationPermissions(_ context.Context, app *protocol.Application) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.err != nil {
		return nil, e.err
	}
	if app == nil {
		return nil, protocol.ErrNotFound
	}
	perms, ok := e.permissions[app.ID]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	return slices.Clone(perms), nil
}
