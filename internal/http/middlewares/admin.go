package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
)

// AdminKeyHeader header que transporta la API key de administración.
const AdminKeyHeader = "X-Admin-API-Key"

// RequireAdminKey protege la superficie admin con una API key estática.
// Key vacía deshabilita la superficie completa (403), nunca la deja abierta.
func RequireAdminKey(key string) Middleware {
	want := []byte(strings.TrimSpace(key))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				errors.WriteError(w, errors.ErrForbidden.WithDetail("admin api disabled"))
				return
			}
			got := []byte(strings.TrimSpace(r.Header.Get(AdminKeyHeader)))
			if len(got) == 0 {
				errors.WriteError(w, errors.ErrUnauthorized.WithDetail("missing "+AdminKeyHeader))
				return
			}
			if subtle.ConstantTimeCompare(got, want) != 1 {
				logger.From(r.Context()).Warn("admin key rejected",
					logger.Layer("http"),
					logger.Component("admin"),
					logger.ClientIP(ClientIP(r)),
				)
				errors.WriteError(w, errors.ErrForbidden.WithDetail("invalid admin api key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
