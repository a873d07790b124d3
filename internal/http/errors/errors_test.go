package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
	"github.com/dropDatabas3/grantkeeper/internal/session"
)

func TestFromError_DomainMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"reuse", fmt.Errorf("x: %w", session.ErrTokenReuseDetected), http.StatusConflict, "REFRESH_TOKEN_REUSE"},
		{"revoked", session.ErrSessionRevoked, http.StatusConflict, "SESSION_REVOKED"},
		{"expired", session.ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED"},
		{"session missing", session.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"client missing", scopes.ErrClientNotFound, http.StatusNotFound, "CLIENT_NOT_FOUND"},
		{"scope not allowed", &scopes.ScopeError{Scope: "email", Err: scopes.ErrScopeNotAllowed}, http.StatusConflict, "SCOPE_NOT_ALLOWED"},
		{"scope missing", &scopes.ScopeError{Scope: "nope", Err: scopes.ErrScopeNotFound}, http.StatusNotFound, "SCOPE_NOT_FOUND"},
		{"tampering", &scopes.ConsentTamperingError{ClientID: "c", Missing: []string{"email"}}, http.StatusConflict, "CONSENT_TAMPERED"},
		{"invalid set", scopes.ErrInvalidScopeSet, http.StatusBadRequest, "INVALID_SCOPE_SET"},
		{"unavailable", session.ErrEngineUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"invalid input", repository.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{"app error", ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromError(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.status, got.HTTPStatus)
			assert.Equal(t, tc.code, got.Code)
		})
	}
	assert.Nil(t, FromError(nil))
}

func TestWithDetail_DoesNotMutateBase(t *testing.T) {
	e := ErrBadRequest.WithDetail("x")
	assert.Equal(t, "x", e.Detail)
	assert.Empty(t, ErrBadRequest.Detail)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &scopes.ScopeError{Scope: "email", Err: scopes.ErrScopeNotAllowed})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SCOPE_NOT_ALLOWED", body.Code)
	assert.Contains(t, body.Detail, `"email"`)
}
