package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantkeeper/internal/protocol"
)

func TestEngine_RevokeTokensByAuthorization(t *testing.T) {
	ctx := context.Background()
	e := New()
	e.AddAuthorization("auth-1", "user-1", "app-1", "openid")
	e.AddAuthorization("auth-2", "user-1", "app-1", "openid")
	e.IssueTokens("auth-1", 3)
	e.IssueTokens("auth-2", 1)

	n, err := e.RevokeTokensByAuthorization(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, e.ActiveTokens("auth-1"))
	assert.Equal(t, 1, e.ActiveTokens("auth-2"))

	n, err = e.RevokeTokensByAuthorization(ctx, "auth-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_NotFound(t *testing.T) {
	ctx := context.Background()
	e := New()

	_, err := e.FindAuthorizationByID(ctx, "missing")
	assert.ErrorIs(t, err, protocol.ErrNotFound)
	assert.True(t, protocol.IsNotFound(err))

	_, err = e.FindScopeByName(ctx, "missing")
	assert.ErrorIs(t, err, protocol.ErrNotFound)

	_, err = e.FindApplicationByID(ctx, "missing")
	assert.ErrorIs(t, err, protocol.ErrNotFound)
}

func TestEngine_ListScopesSorted(t *testing.T) {
	e := New()
	e.AddScope("profile")
	e.AddScope("email")
	e.AddScope("openid")

	var names []string
	for ref, err := range e.ListScopes(context.Background()) {
		require.NoError(t, err)
		names = append(names, e.ScopeName(ref))
	}
	assert.Equal(t, []string{"email", "openid", "profile"}, names)
}

func TestEngine_SetError(t *testing.T) {
	e := New()
	boom := errors.New("down")
	e.SetError(boom)

	for _, err := range e.ListScopes(context.Background()) {
		assert.ErrorIs(t, err, boom)
	}
	_, err := e.FindApplicationByID(context.Background(), "app")
	assert.ErrorIs(t, err, boom)
}

func TestAllowedScopes(t *testing.T) {
	perms := []string{"scp:openid", "gt:refresh_token", "SCP:email", "scp:", "ept:token"}
	assert.Equal(t, []string{"openid", "email"}, protocol.AllowedScopes(perms))
}

func TestEngine_FindScopeByNameIgnoresCase(t *testing.T) {
	ctx := context.Background()
	e := New()
	e.AddScope("email")
	e.AddScope("Profile")
	e.AddScope("profile")

	ref, err := e.FindScopeByName(ctx, "EMAIL")
	require.NoError(t, err)
	assert.Equal(t, "email", e.ScopeName(*ref))

	// Con variantes de mayúsculas gana la coincidencia exacta.
	ref, err = e.FindScopeByName(ctx, "Profile")
	require.NoError(t, err)
	assert.Equal(t, "Profile", e.ScopeName(*ref))

	_, err = e.FindScopeByName(ctx, "phone")
	assert.ErrorIs(t, err, protocol.ErrNotFound)
}
