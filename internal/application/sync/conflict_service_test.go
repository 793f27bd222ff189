package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

func newConflictService(env *pushEnv) *ConflictService {
	return NewConflictService(&persistence.Database{DB: env.db}, env.writer, env.conflicts,
		persistence.NewGormAuditLogRepository(env.db))
}

// flagStaleEdit seeds a store row and pushes a divergent edit against it,
// leaving one open conflict behind.
func flagStaleEdit(t *testing.T, env *pushEnv, ctx context.Context, tenantID uuid.UUID, editID string) (*models.StoreModel, uuid.UUID) {
	t.Helper()

	store := env.seedStore(t, ctx, tenantID)
	result, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: editID,
		TableName:      "stores",
		RowID:          store.ID,
		Operation:      syncdomain.OperationUpdate,
		BaseVersion:    0,
		Payload:        syncdomain.Document{"name": "Offline Rename"},
	})
	require.NoError(t, err)
	require.Equal(t, PushStatusConflicted, result.Status)
	require.NotNil(t, result.ConflictID)
	return store, *result.ConflictID
}

func TestConflictService_ListOpen(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	older := syncdomain.NewSyncConflict("stores", uuid.New(),
		syncdomain.Document{"tenant_id": tenantID.String(), "name": "client"},
		syncdomain.Document{"tenant_id": tenantID.String(), "name": "server"})
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := syncdomain.NewSyncConflict("stores", uuid.New(),
		syncdomain.Document{"tenant_id": tenantID.String(), "name": "client"},
		syncdomain.Document{"tenant_id": tenantID.String(), "name": "server"})
	foreign := syncdomain.NewSyncConflict("stores", uuid.New(),
		syncdomain.Document{"tenant_id": uuid.New().String()},
		syncdomain.Document{"tenant_id": uuid.New().String()})
	for _, c := range []*syncdomain.SyncConflict{older, newer, foreign} {
		require.NoError(t, env.conflicts.Save(context.Background(), c))
	}

	responses, total, err := service.ListOpen(ctx, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, responses, 2)
	assert.Equal(t, older.ID, responses[0].ID, "oldest first")
	assert.Equal(t, newer.ID, responses[1].ID)

	_, _, err = service.ListOpen(context.Background(), 1, 20)
	assert.ErrorIs(t, err, shared.ErrAccessContextMissing)
}

func TestConflictService_Get(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	_, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-get")

	t.Run("own tenant", func(t *testing.T) {
		resp, err := service.Get(ctx, conflictID)
		require.NoError(t, err)
		assert.Equal(t, conflictID, resp.ID)
		assert.Equal(t, "stores", resp.TableName)
	})

	t.Run("foreign tenant", func(t *testing.T) {
		_, err := service.Get(accessContext(uuid.New()), conflictID)
		assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)
	})

	t.Run("superadmin crosses tenants", func(t *testing.T) {
		superCtx := shared.WithAccess(context.Background(), shared.AccessContext{
			TenantID:     uuid.New(),
			IsSuperAdmin: true,
		})
		_, err := service.Get(superCtx, conflictID)
		assert.NoError(t, err)
	})

	t.Run("unknown conflict", func(t *testing.T) {
		_, err := service.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestConflictService_AuditTrail(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	store, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-audit")

	t.Run("returns the conflicted row's ledger", func(t *testing.T) {
		entries, err := service.AuditTrail(ctx, conflictID, 0)

		require.NoError(t, err)
		require.NotEmpty(t, entries)
		// The seed insert is on record; the stale edit never touched the row.
		last := entries[len(entries)-1]
		assert.Equal(t, string(syncdomain.OperationInsert), last.Action)
		rowID, ok := last.Data.UUID("id")
		require.True(t, ok)
		assert.Equal(t, store.ID, rowID)
	})

	t.Run("foreign tenant", func(t *testing.T) {
		_, err := service.AuditTrail(accessContext(uuid.New()), conflictID, 0)
		assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)
	})

	t.Run("unknown conflict", func(t *testing.T) {
		_, err := service.AuditTrail(ctx, uuid.New(), 0)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestConflictService_Resolve_AcceptClient(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	store, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-ac")
	before := env.changeRecordCount(t)

	resp, err := service.Resolve(ctx, ResolveConflictRequest{
		ConflictID: conflictID,
		Choice:     syncdomain.ResolutionAcceptClient,
	})

	require.NoError(t, err)
	require.NotNil(t, resp.ResolvedAt)
	assert.Equal(t, "accept_client", resp.Resolution["choice"])

	// The client's payload won and was written through the tracked path.
	var row models.StoreModel
	require.NoError(t, env.db.Where("id = ?", store.ID).Take(&row).Error)
	assert.Equal(t, "Offline Rename", row.Name)
	assert.Equal(t, before+1, env.changeRecordCount(t), "the resolution write mints its own change record")
}

func TestConflictService_Resolve_AcceptServer(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	store, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-as")
	before := env.changeRecordCount(t)

	resp, err := service.Resolve(ctx, ResolveConflictRequest{
		ConflictID: conflictID,
		Choice:     syncdomain.ResolutionAcceptServer,
	})

	require.NoError(t, err)
	require.NotNil(t, resp.ResolvedAt)

	// The row already holds the server state; no write, no new record.
	var row models.StoreModel
	require.NoError(t, env.db.Where("id = ?", store.ID).Take(&row).Error)
	assert.Equal(t, "Main Street", row.Name)
	assert.Equal(t, before, env.changeRecordCount(t))
}

func TestConflictService_Resolve_Merged(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	store, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-m")

	t.Run("merged payload is required", func(t *testing.T) {
		_, err := service.Resolve(ctx, ResolveConflictRequest{
			ConflictID: conflictID,
			Choice:     syncdomain.ResolutionMerged,
		})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	resp, err := service.Resolve(ctx, ResolveConflictRequest{
		ConflictID: conflictID,
		Choice:     syncdomain.ResolutionMerged,
		Merged:     syncdomain.Document{"name": "Merged Name"},
	})

	require.NoError(t, err)
	assert.Equal(t, "merged", resp.Resolution["choice"])

	var row models.StoreModel
	require.NoError(t, env.db.Where("id = ?", store.ID).Take(&row).Error)
	assert.Equal(t, "Merged Name", row.Name)
}

func TestConflictService_Resolve_Terminal(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	_, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-t")

	_, err := service.Resolve(ctx, ResolveConflictRequest{
		ConflictID: conflictID,
		Choice:     syncdomain.ResolutionAcceptServer,
	})
	require.NoError(t, err)

	_, err = service.Resolve(ctx, ResolveConflictRequest{
		ConflictID: conflictID,
		Choice:     syncdomain.ResolutionAcceptClient,
	})
	assert.ErrorIs(t, err, shared.ErrConflictResolved)
}

func TestConflictService_Resolve_Validation(t *testing.T) {
	env := newPushEnv(t)
	service := newConflictService(env)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	_, conflictID := flagStaleEdit(t, env, ctx, tenantID, "edit-v")

	t.Run("unknown choice", func(t *testing.T) {
		_, err := service.Resolve(ctx, ResolveConflictRequest{
			ConflictID: conflictID,
			Choice:     "coin_flip",
		})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("foreign tenant", func(t *testing.T) {
		_, err := service.Resolve(accessContext(uuid.New()), ResolveConflictRequest{
			ConflictID: conflictID,
			Choice:     syncdomain.ResolutionAcceptServer,
		})
		assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)
	})

	t.Run("unknown conflict", func(t *testing.T) {
		_, err := service.Resolve(ctx, ResolveConflictRequest{
			ConflictID: uuid.New(),
			Choice:     syncdomain.ResolutionAcceptServer,
		})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
