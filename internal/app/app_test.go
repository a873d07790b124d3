package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantkeeper/internal/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("REFRESH_HASH_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ADMIN_API_KEY", "k")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryStack(t *testing.T) {
	cfg := memoryConfig(t)

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	require.NotNil(t, c.Sessions)
	require.NotNil(t, c.Scopes)

	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grantkeeper_")

	// Sin jwt.hmac_secret el endpoint de claims queda deshabilitado.
	rec = httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connect/userinfo", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNew_UnknownAdapter(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Storage.Driver = "sqlite"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
