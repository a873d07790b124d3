package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	jwtx "github.com/dropDatabas3/grantkeeper/internal/jwt"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mk("A"), mk("B"), mk("C"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}), WithRequestID())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	cases := map[string]struct {
		header string
		keep   bool
	}{
		"engine id":     {"engine-7f3a:42", true},
		"newline":       {"abc\nforged=1", false},
		"spaces":        {"a b", false},
		"too long":      {strings.Repeat("a", 129), false},
		"at max length": {strings.Repeat("a", 128), true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tc.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if tc.keep {
				assert.Equal(t, tc.header, seen)
				return
			}
			assert.NotEqual(t, tc.header, seen)
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
		})
	}
}

func TestWithLogging_RouteParams(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer logger.ReplaceForTests(zap.New(core))()

	r := chi.NewRouter()
	r.Use(WithRequestID(), WithLogging(false))
	r.Post("/v1/admin/users/{user_id}/sessions/{authorization_id}/revoke", func(w http.ResponseWriter, r *http.Request) {
		logger.From(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/users/user-1/sessions/auth-9/revoke", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	inner := logs.FilterMessage("inside handler").All()
	require.Len(t, inner, 1)
	assert.Equal(t, "rid-1", inner[0].ContextMap()["request_id"])

	done := logs.FilterMessage("request completed").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "auth-9", fields["authorization_id"])
	assert.Equal(t, "/v1/admin/users/{user_id}/sessions/{authorization_id}/revoke", fields["route"])
	assert.EqualValues(t, http.StatusAccepted, fields["status"])
	assert.NotContains(t, fields, "client_id")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestRequireAdminKey(t *testing.T) {
	h := Chain(okHandler(), RequireAdminKey("s3cret"))

	cases := map[string]struct {
		key  string
		want int
	}{
		"missing": {"", http.StatusUnauthorized},
		"wrong":   {"nope", http.StatusForbidden},
		"ok":      {"s3cret", http.StatusNoContent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.key != "" {
				req.Header.Set(AdminKeyHeader, tc.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	disabled := Chain(okHandler(), RequireAdminKey(""))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AdminKeyHeader, "anything")
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAuthAndScope(t *testing.T) {
	iss, err := jwtx.NewIssuer("https://auth.local", "", testSecret)
	require.NoError(t, err)

	var sub string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}), RequireAuth(iss), RequireScope("RequireScope:email"))

	do := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")

	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	tok, err := iss.Sign("user-1", "openid profile", nil)
	require.NoError(t, err)
	rec = do("Bearer " + tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `insufficient_scope`)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `scope="email"`)

	tok, err = iss.Sign("user-1", "openid EMAIL", nil)
	require.NoError(t, err)
	rec = do("bearer " + tok)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-1", sub)

	tok, err = iss.Sign("user-2", "", map[string]any{"scp": []string{"email"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do("Bearer "+tok).Code)
}

func TestRequireUser(t *testing.T) {
	h := Chain(okHandler(), RequireUser())

	cases := map[string]struct {
		claims map[string]any
		want   int
	}{
		"no claims":  {nil, http.StatusUnauthorized},
		"empty sub":  {map[string]any{"sub": ""}, http.StatusUnauthorized},
		"with sub":   {map[string]any{"sub": "user-1"}, http.StatusNoContent},
		"sub no str": {map[string]any{"sub": 42}, http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tc.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireScope_InvalidPolicyFailsClosed(t *testing.T) {
	h := Chain(okHandler(), RequireScope("RequireRole:admin"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{"scope": "admin"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWithRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), WithRecover())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", ClientIP(req))

	// Un primer salto que no es IP no se confía.
	req.Header.Set("X-Forwarded-For", "evil, 1.2.3.4")
	assert.Equal(t, "10.0.0.9", ClientIP(req))
}
