package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos/backend/internal/domain/shared"
)

func TestGormSyncSessionRepository_FindOrCreate(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormSyncSessionRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	storeID := uuid.New()

	t.Run("creates session on first contact", func(t *testing.T) {
		session, err := repo.FindOrCreate(ctx, tenantID, &storeID, "register-1")
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, session.ID)
		assert.Equal(t, int64(0), session.LastSyncedVersion)
	})

	t.Run("returns the same session on repeat contact", func(t *testing.T) {
		first, err := repo.FindOrCreate(ctx, tenantID, &storeID, "register-2")
		require.NoError(t, err)
		second, err := repo.FindOrCreate(ctx, tenantID, &storeID, "register-2")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("store scope separates sessions with the same client id", func(t *testing.T) {
		scoped, err := repo.FindOrCreate(ctx, tenantID, &storeID, "register-3")
		require.NoError(t, err)
		tenantWide, err := repo.FindOrCreate(ctx, tenantID, nil, "register-3")
		require.NoError(t, err)
		assert.NotEqual(t, scoped.ID, tenantWide.ID)

		again, err := repo.FindOrCreate(ctx, tenantID, nil, "register-3")
		require.NoError(t, err)
		assert.Equal(t, tenantWide.ID, again.ID)
	})

	t.Run("tenant scope separates sessions with the same client id", func(t *testing.T) {
		a, err := repo.FindOrCreate(ctx, tenantID, nil, "register-4")
		require.NoError(t, err)
		b, err := repo.FindOrCreate(ctx, uuid.New(), nil, "register-4")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestGormSyncSessionRepository_Advance(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormSyncSessionRepository(db)
	ctx := context.Background()

	session, err := repo.FindOrCreate(ctx, uuid.New(), nil, "register-1")
	require.NoError(t, err)

	t.Run("advances forward", func(t *testing.T) {
		require.NoError(t, repo.Advance(ctx, session.ID, 10))

		refetched, err := repo.FindOrCreate(ctx, *session.TenantID, nil, "register-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), refetched.LastSyncedVersion)
	})

	t.Run("equal version is a no-op", func(t *testing.T) {
		require.NoError(t, repo.Advance(ctx, session.ID, 10))
	})

	t.Run("regression is rejected", func(t *testing.T) {
		err := repo.Advance(ctx, session.ID, 5)
		assert.ErrorIs(t, err, shared.ErrCursorRegression)

		refetched, err := repo.FindOrCreate(ctx, *session.TenantID, nil, "register-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), refetched.LastSyncedVersion)
	})

	t.Run("unknown session", func(t *testing.T) {
		err := repo.Advance(ctx, uuid.New(), 3)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSyncSessionRepository_Touch(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormSyncSessionRepository(db)
	ctx := context.Background()

	session, err := repo.FindOrCreate(ctx, uuid.New(), nil, "register-1")
	require.NoError(t, err)

	require.NoError(t, repo.Touch(ctx, session.ID))

	refetched, err := repo.FindOrCreate(ctx, *session.TenantID, nil, "register-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), refetched.LastSyncedVersion)

	assert.ErrorIs(t, repo.Touch(ctx, uuid.New()), shared.ErrNotFound)
}

func TestGormSyncSessionRepository_MinActiveCursor(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormSyncSessionRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()

	t.Run("no sessions at all", func(t *testing.T) {
		_, ok, err := repo.MinActiveCursor(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	a, err := repo.FindOrCreate(ctx, tenantID, nil, "register-a")
	require.NoError(t, err)
	b, err := repo.FindOrCreate(ctx, tenantID, nil, "register-b")
	require.NoError(t, err)

	require.NoError(t, repo.Advance(ctx, a.ID, 30))
	require.NoError(t, repo.Advance(ctx, b.ID, 12))

	t.Run("lowest cursor among active sessions", func(t *testing.T) {
		cursor, ok, err := repo.MinActiveCursor(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(12), cursor)
	})

	t.Run("abandoned sessions are ignored", func(t *testing.T) {
		// Push the lagging session's last_seen into the past
		require.NoError(t, db.Table("sync_sessions").
			Where("id = ?", b.ID).
			Update("last_seen", time.Now().Add(-30*24*time.Hour)).Error)

		cursor, ok, err := repo.MinActiveCursor(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(30), cursor)
	})
}
