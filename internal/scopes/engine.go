// Package scopes implementa la autorización de scopes: el set de required scopes
// por client (administrado, persistido y cacheado), el detector de consent
// manipulado y la policy RequireScope evaluada por request.
package scopes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/grantkeeper/internal/audit"
	"github.com/dropDatabas3/grantkeeper/internal/cache"
	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/metrics"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/observability/tracing"
	"github.com/dropDatabas3/grantkeeper/internal/protocol"
	"github.com/dropDatabas3/grantkeeper/internal/validation"
)

// Engine define las operaciones de required scopes.
type Engine interface {
	// SetRequiredScopes reemplaza el set completo del client (no hace merge).
	SetRequiredScopes(ctx context.Context, clientID string, scopeNames []string) error

	// GetRequiredScopes devuelve los nombres del set actual. Vacío es válido.
	GetRequiredScopes(ctx context.Context, clientID string) ([]string, error)

	// IsScopeRequired compara sin distinguir mayúsculas.
	IsScopeRequired(ctx context.Context, clientID, scopeName string) (bool, error)

	// VerifyConsent rechaza un consent que omite algún required scope.
	VerifyConsent(ctx context.Context, in ConsentInput) error

	// FindOrphanedRequiredScopes lista required scopes que ya no están entre los
	// permitidos del client. Solo diagnóstico: no modifica nada.
	FindOrphanedRequiredScopes(ctx context.Context, clientID string) ([]string, error)
}

// ConsentInput es el consent tal como lo envió el usuario.
type ConsentInput struct {
	ClientID      string
	SubjectID     string
	GrantedScopes []string // se aceptan valores separados por espacios
	SourceIP      string
	UserAgent     string
}

// Deps contiene las dependencias del engine.
type Deps struct {
	Repo     repository.RequiredScopeRepository
	Protocol protocol.Engine
	Audit    audit.Sink

	// Cache nil desactiva el cache de required scopes.
	Cache    cache.Client
	CacheTTL time.Duration

	Now    func() time.Time
	Tracer trace.Tracer
}

const (
	cacheKeyPrefix   = "required_scopes:"
	versionKeyPrefix = "required_scopes_ver:"

	// La versión debe sobrevivir a las entradas que valida.
	versionTTL = 24 * time.Hour
)

// cacheEntry es el set cacheado junto a la versión leída antes de cargarlo.
// Solo vale mientras la versión del client no cambie.
type cacheEntry struct {
	Version string   `json:"v"`
	Scopes  []string `json:"scopes"`
}

type engine struct {
	deps  Deps
	group singleflight.Group

	// generation sube con cada Set confirmado; separa cargas aun sin cache.
	generation atomic.Uint64
}

// NewEngine crea el engine de required scopes.
func NewEngine(deps Deps) Engine {
	if deps.Audit == nil {
		deps.Audit = audit.Discard
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Tracer()
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 5 * time.Minute
	}
	return &engine{deps: deps}
}

// ─── Set ───

func (e *engine) SetRequiredScopes(ctx context.Context, clientID string, scopeNames []string) (err error) {
	ctx, span := tracing.Start(ctx, e.deps.Tracer, "scopes.SetRequiredScopes",
		attribute.String(tracing.AttrClientID, clientID),
	)
	defer func() { tracing.End(span, err) }()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("scopes"),
		logger.Op("SetRequiredScopes"),
		logger.ClientID(clientID),
	)

	result := "error"
	defer func() { metrics.RequiredScopeChanges.WithLabelValues(result).Inc() }()

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		result = "invalid"
		return fmt.Errorf("%w: client id required", ErrInvalidScopeSet)
	}
	names, err := validation.NormalizeScopeSet(scopeNames)
	if err != nil {
		result = "invalid"
		return fmt.Errorf("%w: %v", ErrInvalidScopeSet, err)
	}

	// 1. client
	app, err := e.deps.Protocol.FindApplicationByID(ctx, clientID)
	if err != nil {
		if protocol.IsNotFound(err) {
			result = "not_found"
			return ErrClientNotFound
		}
		return fmt.Errorf("%w: find application: %w", ErrEngineUnavailable, err)
	}

	// 2. cada nombre resuelve a un scope conocido
	ids := make([]string, 0, len(names))
	for i, name := range names {
		ref, err := e.deps.Protocol.FindScopeByName(ctx, name)
		if err != nil {
			if protocol.IsNotFound(err) {
				result = "not_found"
				return &ScopeError{Scope: name, Err: ErrScopeNotFound}
			}
			return fmt.Errorf("%w: find scope: %w", ErrEngineUnavailable, err)
		}
		ids = append(ids, e.deps.Protocol.ScopeID(*ref))
		names[i] = e.deps.Protocol.ScopeName(*ref)
	}

	// 3. cada scope está entre los permitidos del client
	perms, err := e.deps.Protocol.ApplicationPermissions(ctx, app)
	if err != nil {
		return fmt.Errorf("%w: application permissions: %w", ErrEngineUnavailable, err)
	}
	allowed := foldSet(protocol.AllowedScopes(perms))
	for _, name := range names {
		if _, ok := allowed[strings.ToLower(name)]; !ok {
			result = "not_allowed"
			log.Info("required scope rejected", logger.Scope(name))
			return &ScopeError{Scope: name, Err: ErrScopeNotAllowed}
		}
	}

	err = e.deps.Repo.Replace(ctx, repository.ReplaceRequiredScopesInput{
		ClientID:  clientID,
		ScopeIDs:  ids,
		CreatedAt: e.deps.Now(),
		BeforeCommit: func(ctx context.Context) error {
			err := e.deps.Audit.RecordEvent(ctx, audit.Event{
				Type:      audit.EventRequiredScopesChanged,
				SubjectID: clientID,
				Details: map[string]any{
					"client_id": clientID,
					"scopes":    names,
				},
			})
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrAuditUnavailable, audit.EventRequiredScopesChanged, err)
			}
			return nil
		},
	})
	if err != nil {
		log.Error("replace required scopes failed", logger.Err(err))
		if errors.Is(err, ErrAuditUnavailable) {
			return err
		}
		return fmt.Errorf("replace required scopes: %w", err)
	}

	// Post-commit: toda carga que arrancó antes queda con una versión vieja.
	e.generation.Add(1)
	e.invalidate(ctx, clientID)
	result = "ok"
	log.Info("required scopes replaced", logger.Strings("scopes", names))
	return nil
}

// ─── Get ───

func (e *engine) GetRequiredScopes(ctx context.Context, clientID string) (_ []string, err error) {
	ctx, span := tracing.Start(ctx, e.deps.Tracer, "scopes.GetRequiredScopes",
		attribute.String(tracing.AttrClientID, clientID),
	)
	defer func() { tracing.End(span, err) }()

	version, cacheable := e.version(ctx, clientID)
	if cacheable {
		if names, ok := e.fromCache(ctx, clientID, version); ok {
			return names, nil
		}
	}

	// La clave incluye la versión: quien llega después de un Set no se une a
	// una carga que leyó filas previas al commit.
	key := fmt.Sprintf("%s|%d|%s", clientID, e.generation.Load(), version)
	v, err, _ := e.group.Do(key, func() (any, error) {
		names, err := e.load(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if cacheable {
			e.toCache(ctx, clientID, version, names)
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	names := v.([]string)
	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

// load lee las filas y resuelve ids a nombres recorriendo los scopes del engine.
func (e *engine) load(ctx context.Context, clientID string) ([]string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("scopes"),
		logger.Op("GetRequiredScopes"),
		logger.ClientID(clientID),
	)

	rows, err := e.deps.Repo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list required scopes: %w", err)
	}
	if len(rows) == 0 {
		return []string{}, nil
	}

	byID := make(map[string]string, len(rows))
	for _, r := range rows {
		byID[r.ScopeID] = ""
	}
	for ref, err := range e.deps.Protocol.ListScopes(ctx) {
		if err != nil {
			return nil, fmt.Errorf("%w: list scopes: %w", ErrEngineUnavailable, err)
		}
		id := e.deps.Protocol.ScopeID(ref)
		if _, ok := byID[id]; ok {
			byID[id] = e.deps.Protocol.ScopeName(ref)
		}
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		name := byID[r.ScopeID]
		if name == "" {
			log.Warn("required scope unknown to protocol engine", logger.String("scope_id", r.ScopeID))
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (e *engine) IsScopeRequired(ctx context.Context, clientID, scopeName string) (bool, error) {
	names, err := e.GetRequiredScopes(ctx, clientID)
	if err != nil {
		return false, err
	}
	return containsFold(names, strings.TrimSpace(scopeName)), nil
}

// ─── Consent ───

func (e *engine) VerifyConsent(ctx context.Context, in ConsentInput) (err error) {
	ctx, span := tracing.Start(ctx, e.deps.Tracer, "scopes.VerifyConsent",
		attribute.String(tracing.AttrClientID, in.ClientID),
		attribute.String(tracing.AttrUserID, in.SubjectID),
	)
	defer func() { tracing.End(span, err) }()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("scopes"),
		logger.Op("VerifyConsent"),
		logger.ClientID(in.ClientID),
		logger.UserID(in.SubjectID),
	)

	required, err := e.GetRequiredScopes(ctx, in.ClientID)
	if err != nil {
		return err
	}

	var granted []string
	for _, g := range in.GrantedScopes {
		granted = append(granted, strings.Fields(g)...)
	}

	var missing []string
	for _, r := range required {
		if !containsFold(granted, r) {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	metrics.ConsentTampering.Inc()
	log.Warn("consent omits required scopes", logger.Strings("missing", missing), logger.ClientIP(in.SourceIP))

	// El rechazo no depende del sink.
	auditErr := e.deps.Audit.RecordEvent(ctx, audit.Event{
		Type:      audit.EventConsentTamperingDetected,
		SubjectID: in.SubjectID,
		Details: map[string]any{
			"client_id":      in.ClientID,
			"missing_scopes": missing,
		},
		IP:        in.SourceIP,
		UserAgent: in.UserAgent,
	})
	if auditErr != nil {
		log.Error("tampering audit event not recorded", logger.Err(auditErr))
	}

	return &ConsentTamperingError{ClientID: in.ClientID, Missing: missing}
}

// ─── Orphans ───

func (e *engine) FindOrphanedRequiredScopes(ctx context.Context, clientID string) ([]string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("scopes"),
		logger.Op("FindOrphanedRequiredScopes"),
		logger.ClientID(clientID),
	)

	app, err := e.deps.Protocol.FindApplicationByID(ctx, clientID)
	if err != nil {
		if protocol.IsNotFound(err) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("%w: find application: %w", ErrEngineUnavailable, err)
	}

	required, err := e.GetRequiredScopes(ctx, clientID)
	if err != nil {
		return nil, err
	}
	perms, err := e.deps.Protocol.ApplicationPermissions(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("%w: application permissions: %w", ErrEngineUnavailable, err)
	}
	allowed := foldSet(protocol.AllowedScopes(perms))

	var orphans []string
	for _, r := range required {
		if _, ok := allowed[strings.ToLower(r)]; !ok {
			orphans = append(orphans, r)
		}
	}
	if len(orphans) > 0 {
		log.Warn("required scopes no longer allowed", logger.Strings("orphans", orphans))
	}
	return orphans, nil
}

// ─── Cache ───

// version lee la versión vigente del set del client. Sin versión guardada
// retorna "". cacheable=false si no hay cache o no se pudo leer.
func (e *engine) version(ctx context.Context, clientID string) (string, bool) {
	if e.deps.Cache == nil {
		return "", false
	}
	v, err := e.deps.Cache.Get(ctx, versionKeyPrefix+clientID)
	if err != nil {
		if cache.IsNotFound(err) {
			return "", true
		}
		logger.From(ctx).Warn("required scopes version read failed", logger.ClientID(clientID), logger.Err(err))
		return "", false
	}
	return v, true
}

func (e *engine) fromCache(ctx context.Context, clientID, version string) ([]string, bool) {
	raw, err := e.deps.Cache.Get(ctx, cacheKeyPrefix+clientID)
	if err != nil {
		if !cache.IsNotFound(err) {
			logger.From(ctx).Warn("required scopes cache read failed", logger.ClientID(clientID), logger.Err(err))
		}
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Version != version {
		return nil, false
	}
	if entry.Scopes == nil {
		entry.Scopes = []string{}
	}
	return entry.Scopes, true
}

func (e *engine) toCache(ctx context.Context, clientID, version string, names []string) {
	raw, err := json.Marshal(cacheEntry{Version: version, Scopes: names})
	if err != nil {
		return
	}
	if err := e.deps.Cache.Set(ctx, cacheKeyPrefix+clientID, string(raw), e.deps.CacheTTL); err != nil {
		logger.From(ctx).Warn("required scopes cache write failed", logger.ClientID(clientID), logger.Err(err))
	}
}

// invalidate publica una versión nueva y borra la entrada. Las cargas que
// leyeron la versión anterior escriben entradas que nadie acepta.
func (e *engine) invalidate(ctx context.Context, clientID string) {
	if e.deps.Cache == nil {
		return
	}
	log := logger.From(ctx)
	if err := e.deps.Cache.Set(ctx, versionKeyPrefix+clientID, uuid.NewString(), versionTTL); err != nil {
		log.Warn("required scopes version bump failed", logger.ClientID(clientID), logger.Err(err))
	}
	if err := e.deps.Cache.Delete(ctx, cacheKeyPrefix+clientID); err != nil {
		log.Warn("required scopes cache invalidation failed", logger.ClientID(clientID), logger.Err(err))
	}
}

// ─── Helpers ───

func foldSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = struct{}{}
	}
	return out
}

func containsFold(list []string, want string) bool {
	if want == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
