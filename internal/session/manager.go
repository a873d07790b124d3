// Package session implementa el ciclo de vida de las sesiones de autorización:
// creación, rotación de refresh tokens, ventanas sliding/absolute y revocación
// en cascada.
//
// Estados:
//
//	Active --refresh--> Active
//	Active --revoke---> Revoked (terminal)
//	Active --reuse----> Revoked (terminal)
//
// RevokeChain es el único camino que escribe RevokedAt. Toda mutación corre
// dentro de SessionRepository.Mutate (una transacción por fila) y registra su
// evento de auditoría antes del commit: si el sink falla, la mutación se descarta.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantkeeper/internal/audit"
	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/metrics"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/observability/tracing"
	"github.com/dropDatabas3/grantkeeper/internal/protocol"
	tokens "github.com/dropDatabas3/grantkeeper/internal/security/token"
)

// Manager define las operaciones del ciclo de vida de sesiones.
type Manager interface {
	// BeginSession crea la sesión cuando el engine emite el primer refresh token.
	BeginSession(ctx context.Context, in BeginInput) (*SessionView, error)

	// Refresh rota el refresh token de la sesión. Una llamada por refresh-grant aceptado.
	Refresh(ctx context.Context, in RefreshInput) (*RotationResult, error)

	// RevokeChain revoca la sesión y todos los tokens de la autorización.
	RevokeChain(ctx context.Context, userID, authorizationID, reason string) (*RevocationResult, error)

	// ListSessions lista las sesiones del usuario, más recientes primero.
	ListSessions(ctx context.Context, userID string) ([]SessionView, error)

	// RevokeSession revoca una sesión a pedido del usuario.
	RevokeSession(ctx context.Context, userID, authorizationID string) (*RevocationResult, error)

	// RevokeAllSessions revoca todas las sesiones activas del usuario (best-effort).
	RevokeAllSessions(ctx context.Context, userID, reason string) (*SweepResult, error)
}

// Deps contiene las dependencias del manager.
type Deps struct {
	Sessions repository.SessionRepository
	Engine   protocol.Engine
	Audit    audit.Sink
	Hasher   *tokens.Hasher
	Config   Config

	// Now es el reloj; nil usa time.Now en UTC.
	Now func() time.Time
	// Tracer nil usa el tracer global.
	Tracer trace.Tracer
}

type manager struct {
	deps Deps
}

// NewManager crea el manager aplicando defaults de configuración.
func NewManager(deps Deps) Manager {
	if deps.Config.SlidingWindow <= 0 {
		deps.Config.SlidingWindow = DefaultSlidingWindow
	}
	if deps.Config.ExtensionEventThreshold <= 0 {
		deps.Config.ExtensionEventThreshold = DefaultExtensionEventThreshold
	}
	if deps.Audit == nil {
		deps.Audit = audit.Discard
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Tracer()
	}
	return &manager{deps: deps}
}

// errReuse marca, dentro del callback de Mutate, que hay que revocar en vez de rotar.
var errReuse = errors.New("presented refresh token matches neither current nor previous hash")

// ─── Begin ───

func (m *manager) BeginSession(ctx context.Context, in BeginInput) (_ *SessionView, err error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.AuthorizationID = strings.TrimSpace(in.AuthorizationID)

	ctx, span := tracing.Start(ctx, m.deps.Tracer, "session.BeginSession",
		attribute.String(tracing.AttrUserID, in.UserID),
		attribute.String(tracing.AttrAuthorizationID, in.AuthorizationID),
	)
	defer func() { tracing.End(span, err) }()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("BeginSession"),
		logger.UserID(in.UserID),
		logger.AuthorizationID(in.AuthorizationID),
	)

	if in.UserID == "" || in.AuthorizationID == "" || in.RefreshToken == "" {
		return nil, fmt.Errorf("%w: user, authorization and refresh token required", ErrInvalidInput)
	}

	if err := m.requireAuthorization(ctx, in.AuthorizationID); err != nil {
		return nil, err
	}

	now := m.deps.Now()
	sliding := now.Add(m.deps.Config.SlidingWindow)
	var absolute *time.Time
	if m.deps.Config.AbsoluteLifetime > 0 {
		abs := now.Add(m.deps.Config.AbsoluteLifetime)
		absolute = &abs
		if sliding.After(abs) {
			sliding = abs
		}
	}

	hash := m.deps.Hasher.Hash(in.RefreshToken)
	created, err := m.deps.Sessions.Create(ctx, repository.CreateSessionInput{
		UserID:            in.UserID,
		AuthorizationID:   in.AuthorizationID,
		RefreshTokenHash:  hash,
		SlidingExpiresAt:  sliding,
		AbsoluteExpiresAt: absolute,
		IP:                in.SourceIP,
		UserAgent:         in.UserAgent,
		CreatedAt:         now,
	}, func(ctx context.Context, s *repository.Session) error {
		details := map[string]any{
			"authorization_id":   s.AuthorizationID,
			"hash_fingerprint":   tokens.Fingerprint(hash),
			"sliding_expires_at": s.SlidingExpiresAt,
		}
		if s.AbsoluteExpiresAt != nil {
			details["absolute_expires_at"] = *s.AbsoluteExpiresAt
		}
		return m.record(ctx, audit.Event{
			Type:      audit.EventSessionCreated,
			SubjectID: s.UserID,
			Details:   details,
			IP:        in.SourceIP,
			UserAgent: in.UserAgent,
		})
	})
	if err != nil {
		if repository.IsConflict(err) {
			return nil, ErrSessionExists
		}
		if errors.Is(err, ErrAuditUnavailable) {
			log.Error("audit unavailable, session not created", logger.Err(err))
			return nil, err
		}
		log.Error("create session failed", logger.Err(err))
		return nil, fmt.Errorf("begin session: %w", err)
	}

	metrics.SessionsCreated.Inc()
	log.Info("session created", logger.Fingerprint("hash_fp", tokens.Fingerprint(hash)))

	view := toView(created, now)
	return &view, nil
}

// ─── Refresh ───

func (m *manager) Refresh(ctx context.Context, in RefreshInput) (_ *RotationResult, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, m.deps.Tracer, "session.Refresh",
		attribute.String(tracing.AttrUserID, in.UserID),
		attribute.String(tracing.AttrAuthorizationID, in.AuthorizationID),
	)
	defer func() {
		tracing.End(span, err)
		metrics.OperationLatency.WithLabelValues("refresh").Observe(time.Since(start).Seconds())
	}()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("Refresh"),
		logger.UserID(in.UserID),
		logger.AuthorizationID(in.AuthorizationID),
	)

	// Sin token presentado no hay detección de reuso posible: se rechaza.
	if in.UserID == "" || in.AuthorizationID == "" || in.PresentedRefreshToken == "" || in.NewRefreshToken == "" {
		return nil, fmt.Errorf("%w: user, authorization, presented and new refresh token required", ErrInvalidInput)
	}

	now := m.deps.Now()
	newHash := m.deps.Hasher.Hash(in.NewRefreshToken)

	var (
		oldSliding time.Time
		extended   bool
	)
	updated, err := m.deps.Sessions.Mutate(ctx, in.AuthorizationID, func(ctx context.Context, s *repository.Session) (bool, error) {
		if s.UserID != in.UserID {
			return false, ErrSessionNotFound
		}
		if s.IsRevoked() {
			return false, ErrSessionRevoked
		}
		if s.Status(now) == repository.SessionStatusExpired {
			return false, ErrSessionExpired
		}
		if !m.matchesWindow(in.PresentedRefreshToken, s) {
			return false, errReuse
		}

		oldHash := s.CurrentRefreshTokenHash
		oldSliding = s.SlidingExpiresAt

		s.PreviousRefreshTokenHash = &oldHash
		s.CurrentRefreshTokenHash = newHash
		s.SlidingExpiresAt = m.nextSliding(now, s)
		if in.SourceIP != "" {
			s.LastRefreshIP = &in.SourceIP
		}
		if in.UserAgent != "" {
			s.LastRefreshUserAgent = &in.UserAgent
		}
		s.UpdatedAt = now

		err := m.record(ctx, audit.Event{
			Type:      audit.EventRefreshTokenRotated,
			SubjectID: s.UserID,
			Details: map[string]any{
				"authorization_id":     s.AuthorizationID,
				"old_hash_fingerprint": tokens.Fingerprint(oldHash),
				"new_hash_fingerprint": tokens.Fingerprint(newHash),
			},
			IP:        in.SourceIP,
			UserAgent: in.UserAgent,
		})
		if err != nil {
			return false, err
		}

		delta := s.SlidingExpiresAt.Sub(oldSliding)
		extended = delta >= m.deps.Config.ExtensionEventThreshold
		if extended {
			err := m.record(ctx, audit.Event{
				Type:      audit.EventSlidingExpirationExtended,
				SubjectID: s.UserID,
				Details: map[string]any{
					"authorization_id":            s.AuthorizationID,
					"previous_sliding_expires_at": oldSliding,
					"sliding_expires_at":          s.SlidingExpiresAt,
					"extended_by_seconds":         int64(delta / time.Second),
				},
				IP:        in.SourceIP,
				UserAgent: in.UserAgent,
			})
			if err != nil {
				return false, err
			}
		}
		return true, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, errReuse):
			metrics.RefreshRotations.WithLabelValues("reuse").Inc()
			return nil, m.handleReuse(ctx, log, in)
		case repository.IsNotFound(err):
			metrics.RefreshRotations.WithLabelValues("not_found").Inc()
			log.Debug("refresh on unknown session")
			return nil, ErrSessionNotFound
		case errors.Is(err, ErrSessionRevoked):
			metrics.RefreshRotations.WithLabelValues("revoked").Inc()
			log.Info("refresh on revoked session rejected")
			return nil, err
		case errors.Is(err, ErrSessionExpired):
			metrics.RefreshRotations.WithLabelValues("expired").Inc()
			log.Info("refresh on expired session rejected")
			return nil, err
		default:
			metrics.RefreshRotations.WithLabelValues("error").Inc()
			log.Error("refresh failed", logger.Err(err))
			if errors.Is(err, ErrAuditUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("refresh session: %w", err)
		}
	}

	metrics.RefreshRotations.WithLabelValues("rotated").Inc()
	span.SetAttributes(attribute.Bool(tracing.AttrTokenRotated, true))
	log.Info("refresh token rotated",
		logger.Fingerprint("new_hash_fp", tokens.Fingerprint(newHash)),
		logger.Bool("extended", extended),
	)

	return &RotationResult{
		Session:                  toView(updated, now),
		Extended:                 extended,
		PreviousSlidingExpiresAt: oldSliding,
	}, nil
}

// matchesWindow compara el token presentado contra el hash vigente y el anterior.
// Ambas comparaciones se hacen siempre, en tiempo constante.
func (m *manager) matchesWindow(presented string, s *repository.Session) bool {
	current := m.deps.Hasher.Matches(presented, s.CurrentRefreshTokenHash)
	previous := false
	if s.PreviousRefreshTokenHash != nil {
		previous = m.deps.Hasher.Matches(presented, *s.PreviousRefreshTokenHash)
	}
	return current || previous
}

// nextSliding = max(actual, min(now+window, absolute)).
func (m *manager) nextSliding(now time.Time, s *repository.Session) time.Time {
	next := now.Add(m.deps.Config.SlidingWindow)
	if s.AbsoluteExpiresAt != nil && next.After(*s.AbsoluteExpiresAt) {
		next = *s.AbsoluteExpiresAt
	}
	if next.Before(s.SlidingExpiresAt) {
		next = s.SlidingExpiresAt
	}
	return next
}

// handleReuse registra el reuse y revoca la cadena. Siempre devuelve un error
// que envuelve ErrTokenReuseDetected.
func (m *manager) handleReuse(ctx context.Context, log *zap.Logger, in RefreshInput) error {
	metrics.RefreshReuseDetected.Inc()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool(tracing.AttrTokenReuse, true))
	log.Warn("refresh token reuse detected, revoking session",
		logger.Fingerprint("presented_hash_fp", tokens.Fingerprint(m.deps.Hasher.Hash(in.PresentedRefreshToken))),
		logger.ClientIP(in.SourceIP),
	)

	auditErr := m.record(ctx, audit.Event{
		Type:      audit.EventRefreshTokenReuseDetected,
		SubjectID: in.UserID,
		Details: map[string]any{
			"authorization_id":           in.AuthorizationID,
			"presented_hash_fingerprint": tokens.Fingerprint(m.deps.Hasher.Hash(in.PresentedRefreshToken)),
		},
		IP:        in.SourceIP,
		UserAgent: in.UserAgent,
	})
	if auditErr != nil {
		log.Error("reuse audit event not recorded", logger.Err(auditErr))
	}

	if _, err := m.RevokeChain(ctx, in.UserID, in.AuthorizationID, ReasonRefreshTokenReuse); err != nil {
		log.Error("revocation after reuse failed", logger.Err(err))
		return errors.Join(ErrTokenReuseDetected, err)
	}
	if auditErr != nil {
		return errors.Join(ErrTokenReuseDetected, auditErr)
	}
	return ErrTokenReuseDetected
}

// ─── Revocación ───

func (m *manager) RevokeChain(ctx context.Context, userID, authorizationID, reason string) (_ *RevocationResult, err error) {
	ctx, span := tracing.Start(ctx, m.deps.Tracer, "session.RevokeChain",
		attribute.String(tracing.AttrUserID, userID),
		attribute.String(tracing.AttrAuthorizationID, authorizationID),
		attribute.String(tracing.AttrRevokeReason, reason),
	)
	defer func() { tracing.End(span, err) }()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("RevokeChain"),
		logger.UserID(userID),
		logger.AuthorizationID(authorizationID),
		logger.Reason(reason),
	)

	if userID == "" || authorizationID == "" || strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: user, authorization and reason required", ErrInvalidInput)
	}

	if err := m.requireAuthorization(ctx, authorizationID); err != nil {
		return nil, err
	}

	now := m.deps.Now()
	result := &RevocationResult{AuthorizationID: authorizationID}

	_, err = m.deps.Sessions.Mutate(ctx, authorizationID, func(ctx context.Context, s *repository.Session) (bool, error) {
		if s.UserID != userID {
			return false, ErrSessionNotFound
		}
		if s.IsRevoked() {
			result.AlreadyRevoked = true
			return false, nil
		}

		n, err := m.deps.Engine.RevokeTokensByAuthorization(ctx, authorizationID)
		if err != nil {
			return false, fmt.Errorf("%w: revoke tokens: %w", ErrEngineUnavailable, err)
		}
		result.TokensRevoked = n

		s.RevokedAt = &now
		s.RevocationReason = &reason
		s.UpdatedAt = now

		return true, m.record(ctx, audit.Event{
			Type:      audit.EventSessionRevoked,
			SubjectID: s.UserID,
			Details: map[string]any{
				"authorization_id": authorizationID,
				"reason":           reason,
				"tokens_revoked":   n,
			},
		})
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		log.Error("revocation failed", logger.Err(err))
		if errors.Is(err, ErrAuditUnavailable) || errors.Is(err, ErrEngineUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("revoke session: %w", err)
	}

	span.SetAttributes(
		attribute.Bool(tracing.AttrAlreadyRevoked, result.AlreadyRevoked),
		attribute.Int(tracing.AttrTokensRevoked, result.TokensRevoked),
	)
	if result.AlreadyRevoked {
		log.Debug("session already revoked")
		return result, nil
	}

	metrics.SessionRevocations.WithLabelValues(reason).Inc()
	metrics.TokensRevoked.Add(float64(result.TokensRevoked))
	log.Info("session revoked", logger.Int("tokens_revoked", result.TokensRevoked))
	return result, nil
}

func (m *manager) RevokeSession(ctx context.Context, userID, authorizationID string) (*RevocationResult, error) {
	return m.RevokeChain(ctx, userID, authorizationID, ReasonUserRevoked)
}

func (m *manager) RevokeAllSessions(ctx context.Context, userID, reason string) (*SweepResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("RevokeAllSessions"),
		logger.UserID(userID),
	)

	if userID == "" {
		return nil, fmt.Errorf("%w: user required", ErrInvalidInput)
	}
	if strings.TrimSpace(reason) == "" {
		reason = ReasonLogoutAll
	}

	list, err := m.deps.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	res := &SweepResult{}
	for _, s := range list {
		if s.IsRevoked() {
			continue
		}
		res.Attempted++

		r, err := m.RevokeChain(ctx, userID, s.AuthorizationID, reason)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, SweepFailure{
				AuthorizationID: s.AuthorizationID,
				Error:           err.Error(),
			})
			log.Warn("sweep item failed", logger.AuthorizationID(s.AuthorizationID), logger.Err(err))
			continue
		}
		if !r.AlreadyRevoked {
			res.Revoked++
		}
		res.TokensRevoked += r.TokensRevoked
	}

	log.Info("sweep finished",
		logger.Int("attempted", res.Attempted),
		logger.Int("revoked", res.Revoked),
		logger.Int("failed", res.Failed),
	)
	return res, nil
}

// ─── Lectura ───

func (m *manager) ListSessions(ctx context.Context, userID string) ([]SessionView, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user required", ErrInvalidInput)
	}
	list, err := m.deps.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := m.deps.Now()
	out := make([]SessionView, 0, len(list))
	for i := range list {
		out = append(out, toView(&list[i], now))
	}
	return out, nil
}

// ─── Helpers ───

func (m *manager) requireAuthorization(ctx context.Context, authorizationID string) error {
	_, err := m.deps.Engine.FindAuthorizationByID(ctx, authorizationID)
	if err == nil {
		return nil
	}
	if protocol.IsNotFound(err) {
		return ErrAuthorizationNotFound
	}
	return fmt.Errorf("%w: find authorization: %w", ErrEngineUnavailable, err)
}

// record emite el evento; cualquier falla del sink se reporta como ErrAuditUnavailable.
func (m *manager) record(ctx context.Context, ev audit.Event) error {
	if err := m.deps.Audit.RecordEvent(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAuditUnavailable, ev.Type, err)
	}
	return nil
}
