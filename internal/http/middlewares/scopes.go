package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	"github.com/dropDatabas3/grantkeeper/internal/metrics"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
)

// RequireScope evalúa la policy "RequireScope:<scope>" contra el principal del
// request. Debe usarse después de RequireAuth. Un nombre de policy inválido
// deja la ruta cerrada.
func RequireScope(policy string) Middleware {
	p, perr := scopes.ParsePolicy(policy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if perr != nil {
				logger.From(r.Context()).Error("invalid scope policy",
					logger.Layer("http"),
					logger.Component("scopes"),
					logger.String("policy", policy),
					logger.Err(perr),
				)
				metrics.ScopeChecks.WithLabelValues("invalid_policy").Inc()
				errors.WriteError(w, errors.ErrForbidden.WithDetail("policy misconfigured"))
				return
			}

			cl := GetClaims(r.Context())
			if cl == nil {
				metrics.ScopeChecks.WithLabelValues("unauthenticated").Inc()
				errors.WriteError(w, errors.ErrUnauthorized.WithDetail("no claims in context"))
				return
			}

			if !p.Satisfied(scopes.PrincipalFromClaims(cl)) {
				metrics.ScopeChecks.WithLabelValues("denied").Inc()
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+p.Scope+`"`)
				errors.WriteError(w, errors.ErrInsufficientScopes.WithDetail("required scope: "+p.Scope))
				return
			}

			metrics.ScopeChecks.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
