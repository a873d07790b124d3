package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type ctxKey int

const (
	claimsKey ctxKey = iota
	requestIDKey
)

// WithClaims guarda las claims del bearer validado.
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims devuelve nil si RequireAuth no corrió.
func GetClaims(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsKey).(map[string]any)
	return claims
}

// GetUserID es el "sub" del bearer.
func GetUserID(ctx context.Context) string {
	return ClaimString(GetClaims(ctx), "sub")
}

func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

// ClaimString lee una claim string; nil-safe.
func ClaimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// ClientIP toma el primer salto de X-Forwarded-For si es una IP válida;
// si no, la dirección remota de la conexión.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
