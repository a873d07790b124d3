package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantkeeper/internal/audit"
	"github.com/dropDatabas3/grantkeeper/internal/cache"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/admin"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/health"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/hooks"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/oidc"
	mw "github.com/dropDatabas3/grantkeeper/internal/http/middlewares"
	"github.com/dropDatabas3/grantkeeper/internal/http/router"
	jwtx "github.com/dropDatabas3/grantkeeper/internal/jwt"
	protomem "github.com/dropDatabas3/grantkeeper/internal/protocol/memory"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
	tokens "github.com/dropDatabas3/grantkeeper/internal/security/token"
	"github.com/dropDatabas3/grantkeeper/internal/session"
	"github.com/dropDatabas3/grantkeeper/internal/store/adapters/memory"
)

const (
	adminKey = "test-admin-key"
	secret   = "0123456789abcdef0123456789abcdef"
)

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

type env struct {
	srv      *httptest.Server
	protocol *protomem.Engine
	audit    *audit.Recorder
	issuer   *jwtx.Issuer
}

func newEnv(t *testing.T, checks map[string]health.Pinger) *env {
	t.Helper()
	conn := memory.New()
	e := &env{protocol: protomem.New(), audit: audit.NewRecorder()}

	hasher, err := tokens.NewHasher([]byte(secret))
	require.NoError(t, err)
	e.issuer, err = jwtx.NewIssuer("https://auth.local", "", secret)
	require.NoError(t, err)

	mgr := session.NewManager(session.Deps{
		Sessions: conn.Sessions(),
		Engine:   e.protocol,
		Audit:    e.audit,
		Hasher:   hasher,
		Config:   session.Config{SlidingWindow: time.Hour, AbsoluteLifetime: 24 * time.Hour},
	})
	eng := scopes.NewEngine(scopes.Deps{
		Repo:     conn.RequiredScopes(),
		Protocol: e.protocol,
		Audit:    e.audit,
		Cache:    cache.NewMemory("test", time.Minute),
	})

	if checks == nil {
		checks = map[string]health.Pinger{"store": conn}
	}
	h := router.New(router.Deps{
		Admin:       admin.NewControllers(mgr, eng),
		Hooks:       hooks.NewControllers(mgr, eng),
		UserInfo:    oidc.NewUserInfoController(),
		Health:      health.NewHealthController(checks),
		Issuer:      e.issuer,
		AdminAPIKey: adminKey,
	})
	e.srv = httptest.NewServer(h)
	t.Cleanup(e.srv.Close)

	for _, s := range []string{"openid", "email", "profile"} {
		e.protocol.AddScope(s)
	}
	e.protocol.AddApplication("app-1", "web", "scp:openid", "scp:email")
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func adminHdr() map[string]string { return map[string]string{mw.AdminKeyHeader: adminKey} }

func TestAdminRoutes_RequireKey(t *testing.T) {
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodGet, "/v1/admin/users/user-1/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	resp, _ = e.do(t, http.MethodGet, "/v1/admin/users/user-1/sessions", nil, map[string]string{mw.AdminKeyHeader: "nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/v1/admin/users/user-1/sessions", nil, adminHdr())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Empty(t, body["sessions"])
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t, nil)
	e.protocol.AddAuthorization("auth-1", "user-1", "app-1", "openid")
	e.protocol.IssueTokens("auth-1", 3)

	resp, body := e.do(t, http.MethodPost, "/v1/hooks/sessions", hooks.BeginRequest{
		UserID: "user-1", AuthorizationID: "auth-1", RefreshToken: "rt-0",
	}, adminHdr())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "active", body["status"])

	resp, _ = e.do(t, http.MethodPost, "/v1/hooks/sessions", hooks.BeginRequest{
		UserID: "user-1", AuthorizationID: "auth-1", RefreshToken: "rt-0",
	}, adminHdr())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Sin token presentado no se rota: la detección de reuso no puede omitirse.
	resp, body = e.do(t, http.MethodPost, "/v1/hooks/sessions/rotate", hooks.RotateRequest{
		UserID: "user-1", AuthorizationID: "auth-1", NewRefreshToken: "attacker",
	}, adminHdr())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_FIELDS", body["code"])

	resp, _ = e.do(t, http.MethodPost, "/v1/hooks/sessions/rotate", hooks.RotateRequest{
		UserID: "user-1", AuthorizationID: "auth-1", PresentedRefreshToken: "rt-0", NewRefreshToken: "rt-1",
	}, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Token que nunca perteneció a la cadena: reuso, cadena revocada.
	resp, body = e.do(t, http.MethodPost, "/v1/hooks/sessions/rotate", hooks.RotateRequest{
		UserID: "user-1", AuthorizationID: "auth-1", PresentedRefreshToken: "stolen", NewRefreshToken: "rt-2",
	}, adminHdr())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "REFRESH_TOKEN_REUSE", body["code"])
	assert.Zero(t, e.protocol.ActiveTokens("auth-1"))

	resp, body = e.do(t, http.MethodGet, "/v1/admin/users/user-1/sessions", nil, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["sessions"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "revoked", list[0].(map[string]any)["status"])
	assert.Equal(t, session.ReasonRefreshTokenReuse, list[0].(map[string]any)["revocation_reason"])

	resp, body = e.do(t, http.MethodPost, "/v1/admin/users/user-1/sessions/auth-1/revoke", nil, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["already_revoked"])
}

func TestRevokeRoutes(t *testing.T) {
	e := newEnv(t, nil)
	for _, id := range []string{"auth-1", "auth-2", "auth-3"} {
		e.protocol.AddAuthorization(id, "user-1", "app-1")
		e.protocol.IssueTokens(id, 1)
		resp, _ := e.do(t, http.MethodPost, "/v1/hooks/sessions", hooks.BeginRequest{
			UserID: "user-1", AuthorizationID: id, RefreshToken: "rt-" + id,
		}, adminHdr())
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := e.do(t, http.MethodDelete, "/v1/admin/users/user-1/sessions/auth-1", nil, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["tokens_revoked"])

	resp, _ = e.do(t, http.MethodDelete, "/v1/admin/users/user-2/sessions/auth-2", nil, adminHdr())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/v1/admin/users/user-1/sessions/revoke-all",
		admin.RevokeRequest{Reason: "logout_all"}, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["attempted"])
	assert.EqualValues(t, 2, body["revoked"])
	assert.EqualValues(t, 0, body["failed"])
}

func TestRequiredScopeRoutes(t *testing.T) {
	e := newEnv(t, nil)
	base := "/v1/admin/clients/app-1/required-scopes"

	resp, body := e.do(t, http.MethodPut, base, admin.SetRequiredScopesRequest{Scopes: []string{"profile"}}, adminHdr())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SCOPE_NOT_ALLOWED", body["code"])
	assert.Contains(t, body["detail"], `"profile"`)

	resp, body = e.do(t, http.MethodPut, base, admin.SetRequiredScopesRequest{Scopes: []string{"missing"}}, adminHdr())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "SCOPE_NOT_FOUND", body["code"])

	resp, _ = e.do(t, http.MethodPut, "/v1/admin/clients/nope/required-scopes", admin.SetRequiredScopesRequest{}, adminHdr())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodPut, base, admin.SetRequiredScopesRequest{Scopes: []string{"openid", "email"}}, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []any{"openid", "email"}, body["scopes"])

	resp, body = e.do(t, http.MethodGet, base+"/EMAIL", nil, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["required"])

	e.protocol.SetPermissions("app-1", "scp:openid")
	resp, body = e.do(t, http.MethodGet, base+"/orphans", nil, adminHdr())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"email"}, body["orphans"])

	resp, body = e.do(t, http.MethodPost, "/v1/hooks/consent/verify", hooks.VerifyConsentRequest{
		ClientID: "app-1", SubjectID: "user-1", Scope: "openid",
	}, adminHdr())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONSENT_TAMPERED", body["code"])

	resp, _ = e.do(t, http.MethodPost, "/v1/hooks/consent/verify", hooks.VerifyConsentRequest{
		ClientID: "app-1", SubjectID: "user-1", GrantedScopes: []string{"openid email"},
	}, adminHdr())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserInfo_ScopeGate(t *testing.T) {
	e := newEnv(t, nil)

	resp, _ := e.do(t, http.MethodGet, "/connect/userinfo", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := e.issuer.Sign("user-1", "profile", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	resp, _ = e.do(t, http.MethodGet, "/connect/userinfo", nil, map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `scope="openid"`)

	tok, err = e.issuer.Sign("user-1", "openid email", map[string]any{"email": "ada@example.com", "name": "Ada"})
	require.NoError(t, err)
	resp, body := e.do(t, http.MethodGet, "/connect/userinfo", nil, map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-1", body["sub"])
	assert.Equal(t, "ada@example.com", body["email"])
	assert.NotContains(t, body, "name")
}

func TestHealthAndNotFound(t *testing.T) {
	e := newEnv(t, nil)
	resp, body := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = e.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ROUTE_NOT_FOUND", body["code"])

	down := newEnv(t, map[string]health.Pinger{"cache": downPinger{}})
	resp, body = down.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}
