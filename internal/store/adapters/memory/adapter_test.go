package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/store"
	"github.com/dropDatabas3/grantkeeper/internal/store/adapters/memory"
)

func newInput(authID string, now time.Time) repository.CreateSessionInput {
	return repository.CreateSessionInput{
		UserID:           "user-1",
		AuthorizationID:  authID,
		RefreshTokenHash: "hash-1",
		SlidingExpiresAt: now.Add(10 * time.Minute),
		IP:               "10.0.0.1",
		CreatedAt:        now,
	}
}

func TestMemoryAdapterRegistered(t *testing.T) {
	conn, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", conn.Name())
	assert.NoError(t, conn.Ping(context.Background()))
}

func TestSessions_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	now := time.Now().UTC()

	_, err := repo.Create(ctx, newInput("auth-1", now), nil)
	require.NoError(t, err)

	_, err = repo.Create(ctx, newInput("auth-1", now), nil)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSessions_CreateHookFailureDiscardsRow(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	boom := errors.New("audit down")

	_, err := repo.Create(ctx, newInput("auth-1", time.Now()), func(context.Context, *repository.Session) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetByAuthorization(ctx, "auth-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessions_MutateRejectsRevokedRows(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	now := time.Now().UTC()
	_, err := repo.Create(ctx, newInput("auth-1", now), nil)
	require.NoError(t, err)

	reason := "logout"
	_, err = repo.Mutate(ctx, "auth-1", func(_ context.Context, s *repository.Session) (bool, error) {
		s.RevokedAt = &now
		s.RevocationReason = &reason
		return true, nil
	})
	require.NoError(t, err)

	_, err = repo.Mutate(ctx, "auth-1", func(_ context.Context, s *repository.Session) (bool, error) {
		s.CurrentRefreshTokenHash = "other"
		return true, nil
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := repo.GetByAuthorization(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.CurrentRefreshTokenHash)
	assert.Equal(t, repository.SessionStatusRevoked, got.Status(now))
}

func TestSessions_MutateCallbackErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	_, err := repo.Create(ctx, newInput("auth-1", time.Now()), nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Mutate(ctx, "auth-1", func(_ context.Context, s *repository.Session) (bool, error) {
		s.CurrentRefreshTokenHash = "changed"
		return true, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByAuthorization(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.CurrentRefreshTokenHash)
}

func TestSessions_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	base := time.Now().UTC()

	_, err := repo.Create(ctx, newInput("old", base), nil)
	require.NoError(t, err)
	_, err = repo.Create(ctx, newInput("new", base.Add(time.Minute)), nil)
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].AuthorizationID)
	assert.Equal(t, "old", list[1].AuthorizationID)
}

func TestRequiredScopes_Replace(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().RequiredScopes()
	now := time.Now().UTC()

	require.NoError(t, repo.Replace(ctx, repository.ReplaceRequiredScopesInput{
		ClientID: "app", ScopeIDs: []string{"s1", "s2"}, CreatedAt: now,
	}))
	require.NoError(t, repo.Replace(ctx, repository.ReplaceRequiredScopesInput{
		ClientID: "app", ScopeIDs: []string{"s3"}, CreatedAt: now,
	}))

	rows, err := repo.ListByClient(ctx, "app")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s3", rows[0].ScopeID)

	boom := errors.New("audit down")
	err = repo.Replace(ctx, repository.ReplaceRequiredScopesInput{
		ClientID: "app", ScopeIDs: nil, CreatedAt: now,
		BeforeCommit: func(context.Context) error { return boom },
	})
	assert.ErrorIs(t, err, boom)

	rows, err = repo.ListByClient(ctx, "app")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAudit_ListBySubject(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Audit()

	for _, typ := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Append(ctx, repository.AuditEvent{ID: typ, Type: typ, SubjectID: "u1"}))
	}
	require.NoError(t, repo.Append(ctx, repository.AuditEvent{ID: "x", Type: "x", SubjectID: "u2"}))

	got, err := repo.ListBySubject(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Type)
	assert.Equal(t, "b", got[1].Type)
}
