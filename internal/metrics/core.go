package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del core de sesiones y scopes. Viven en un paquete aparte para que
// session, scopes y http las compartan sin ciclos de import.

var (
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grantkeeper_sessions_created_total",
		Help: "Sesiones creadas al emitir el primer refresh token",
	})

	RefreshRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grantkeeper_refresh_rotations_total",
		Help: "Rotaciones de refresh token por resultado",
	}, []string{"result"}) // result: rotated|not_found|revoked|expired|reuse|error

	SessionRevocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grantkeeper_session_revocations_total",
		Help: "Revocaciones de sesión por motivo",
	}, []string{"reason"})

	TokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grantkeeper_tokens_revoked_total",
		Help: "Tokens revocados en el protocol engine por cascada",
	})

	RefreshReuseDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grantkeeper_refresh_reuse_detected_total",
		Help: "Presentaciones de refresh tokens ya rotados",
	})

	ScopeChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grantkeeper_scope_checks_total",
		Help: "Evaluaciones de políticas RequireScope por resultado",
	}, []string{"result"}) // result: allowed|denied|unauthenticated|invalid_policy

	RequiredScopeChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grantkeeper_required_scope_changes_total",
		Help: "Cambios de required scopes por resultado",
	}, []string{"result"}) // result: applied|rejected|error

	ConsentTampering = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grantkeeper_consent_tampering_total",
		Help: "Consents rechazados por omitir required scopes",
	})

	OperationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grantkeeper_operation_duration_seconds",
		Help:    "Latencia de operaciones del core",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"op"})
)

// Register registra las métricas del core en reg (o en el default si es nil).
// Registrar dos veces no es un error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		SessionsCreated,
		RefreshRotations,
		SessionRevocations,
		TokensRevoked,
		RefreshReuseDetected,
		ScopeChecks,
		RequiredScopeChanges,
		ConsentTampering,
		OperationLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
