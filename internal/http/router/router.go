// Package router define las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/grantkeeper/internal/http"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/admin"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/health"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/hooks"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/oidc"
	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	mw "github.com/dropDatabas3/grantkeeper/internal/http/middlewares"
	jwtx "github.com/dropDatabas3/grantkeeper/internal/jwt"
	"github.com/dropDatabas3/grantkeeper/internal/rate"
)

// Deps dependencias del router.
type Deps struct {
	Admin    *admin.Controllers
	Hooks    *hooks.Controllers
	UserInfo *oidc.UserInfoController
	Health   *health.HealthController

	// Issuer valida bearer tokens; nil deja /connect/userinfo en 503.
	Issuer *jwtx.Issuer
	// AdminAPIKey protege /v1/admin y /v1/hooks; vacío los deshabilita.
	AdminAPIKey string
	// RateLimiter limita /connect/userinfo por IP; nil = sin límite.
	RateLimiter rate.Limiter
	// Metrics handler de /metrics; nil no monta la ruta.
	Metrics http.Handler
	// Debug loguea también el inicio de cada request.
	Debug bool
}

// New arma el router completo.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(d.Debug),
		httpx.WithMetrics,
		mw.WithSecurityHeaders(),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})

	// ─── Infra ───
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	// ─── Identity claims (scope-gated) ───
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithRateLimit(d.RateLimiter, nil))
		if d.Issuer == nil {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				errors.WriteError(w, errors.ErrServiceUnavailable.WithDetail("jwt validation not configured"))
			}
			r.Get("/connect/userinfo", unavailable)
			r.Post("/connect/userinfo", unavailable)
			return
		}
		r.Use(mw.RequireAuth(d.Issuer), mw.RequireUser(), mw.RequireScope("RequireScope:openid"))
		r.Get("/connect/userinfo", d.UserInfo.UserInfo)
		r.Post("/connect/userinfo", d.UserInfo.UserInfo)
	})

	// ─── Admin + engine hooks ───
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.RequireAdminKey(d.AdminAPIKey), mw.WithNoStore())

		if d.Admin != nil {
			registerAdminRoutes(r, d.Admin)
		}
		if d.Hooks != nil {
			registerHookRoutes(r, d.Hooks)
		}
	})

	return r
}

func registerAdminRoutes(r chi.Router, c *admin.Controllers) {
	r.Route("/admin/users/{user_id}/sessions", func(r chi.Router) {
		r.Get("/", c.Sessions.ListSessions)
		r.Post("/revoke-all", c.Sessions.RevokeAll)
		r.Delete("/{authorization_id}", c.Sessions.RevokeSession)
		r.Post("/{authorization_id}/revoke", c.Sessions.RevokeChain)
	})

	r.Route("/admin/clients/{client_id}/required-scopes", func(r chi.Router) {
		r.Get("/", c.Scopes.Get)
		r.Put("/", c.Scopes.Set)
		r.Get("/orphans", c.Scopes.Orphans)
		r.Get("/{scope}", c.Scopes.Check)
	})
}

func registerHookRoutes(r chi.Router, c *hooks.Controllers) {
	r.Post("/hooks/sessions", c.Sessions.Begin)
	r.Post("/hooks/sessions/rotate", c.Sessions.Rotate)
	r.Post("/hooks/consent/verify", c.Consent.Verify)
}
