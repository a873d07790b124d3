package middlewares

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
)

// Parámetros de ruta que se copian al log de acceso.
var loggedParams = []struct {
	name  string
	field func(string) zap.Field
}{
	{"user_id", logger.UserID},
	{"authorization_id", logger.AuthorizationID},
	{"client_id", logger.ClientID},
}

// WithLogging deja en el contexto un logger con request_id y loguea una
// línea por request al terminar. La línea incluye el patrón de ruta de chi
// y los ids de sesión/cliente presentes en la URL, así un revoke o un PUT de
// required scopes se puede buscar por authorization_id o client_id.
//
// Con debug también loguea el inicio (IP y user agent).
func WithLogging(debug bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := logger.L().With(
				logger.RequestID(GetRequestID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			if debug {
				reqLog.Debug("request started",
					logger.ClientIP(ClientIP(r)),
					logger.UserAgent(r.UserAgent()),
				)
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.ToContext(r.Context(), reqLog)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := append(accessFields(r),
				logger.Status(status),
				logger.Bytes(ww.BytesWritten()),
				logger.DurationMs(time.Since(start).Milliseconds()),
			)
			switch {
			case status >= 500:
				reqLog.Error("request failed", fields...)
			case status >= 400 && debug:
				reqLog.Warn("request rejected", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}

// accessFields lee el contexto de ruteo de chi, que se completa al rutear
// y por eso solo está disponible después de next.ServeHTTP.
func accessFields(r *http.Request) []zap.Field {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	var fields []zap.Field
	if p := rctx.RoutePattern(); p != "" {
		fields = append(fields, logger.String("route", p))
	}
	for _, p := range loggedParams {
		if v := rctx.URLParam(p.name); v != "" {
			fields = append(fields, p.field(v))
		}
	}
	return fields
}
