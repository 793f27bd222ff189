package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/cache"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/persistence/changestream"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// pushEnv wires the push service over an in-memory database with the change
// recorder attached, so applied pushes mint real change records.
type pushEnv struct {
	db        *gorm.DB
	service   *PushService
	writer    *persistence.RowWriter
	changeLog *persistence.GormChangeLogRepository
	conflicts *persistence.GormSyncConflictRepository
}

func newPushEnv(t *testing.T) *pushEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.ChangeRecordModel{},
		&models.TombstoneModel{},
		&models.AuditLogModel{},
		&models.SyncConflictModel{},
		&models.StoreModel{},
		&models.ProductModel{},
	))

	registry := persistence.NewTrackedRegistry()
	require.NoError(t, registry.Register(&models.StoreModel{}, &models.ProductModel{}))
	require.NoError(t, changestream.New(registry, persistence.NewMemoryAllocator(0, 0)).Register(db))

	changeLog := persistence.NewGormChangeLogRepository(db)
	conflicts := persistence.NewGormSyncConflictRepository(db)
	idem := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = idem.Close() })

	writer := persistence.NewRowWriter(db, registry)
	service := NewPushService(&persistence.Database{DB: db}, writer, registry, changeLog, conflicts, idem)

	return &pushEnv{db: db, service: service, writer: writer, changeLog: changeLog, conflicts: conflicts}
}

func (e *pushEnv) seedStore(t *testing.T, ctx context.Context, tenantID uuid.UUID) *models.StoreModel {
	t.Helper()
	store := &models.StoreModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
			Version:   1,
			TenantID:  tenantID,
		},
		Code: "S-001",
		Name: "Main Street",
	}
	require.NoError(t, e.db.WithContext(ctx).Create(store).Error)
	return store
}

func (e *pushEnv) changeRecordCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.ChangeRecordModel{}).Count(&count).Error)
	return count
}

func storeDocument(tenantID, rowID uuid.UUID, name string) syncdomain.Document {
	now := time.Now()
	return syncdomain.Document{
		"id":         rowID.String(),
		"tenant_id":  tenantID.String(),
		"code":       "S-001",
		"name":       name,
		"version":    1,
		"active":     true,
		"created_at": now,
		"updated_at": now,
	}
}

func TestPushService_Push_AppliedInsert(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	rowID := uuid.New()
	result, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-1",
		TableName:      "stores",
		RowID:          rowID,
		Operation:      syncdomain.OperationInsert,
		BaseVersion:    0,
		Payload:        storeDocument(tenantID, rowID, "Corner Shop"),
	})

	require.NoError(t, err)
	assert.Equal(t, PushStatusApplied, result.Status)
	assert.Nil(t, result.ConflictID)

	var row models.StoreModel
	require.NoError(t, env.db.Where("id = ?", rowID).Take(&row).Error)
	assert.Equal(t, "Corner Shop", row.Name)

	// The applied push went through the tracked write path and left its own
	// change record.
	records, err := env.changeLog.HistorySince(ctx, "stores", rowID, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, syncdomain.OperationInsert, records[0].Operation)
}

func TestPushService_Push_AppliedUpdate(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	store := env.seedStore(t, ctx, tenantID)
	baseVersion, err := env.changeLog.MaxCommittedVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), baseVersion)

	result, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-2",
		TableName:      "stores",
		RowID:          store.ID,
		Operation:      syncdomain.OperationUpdate,
		BaseVersion:    baseVersion,
		Payload: syncdomain.Document{
			"name": "Renamed Street",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, PushStatusApplied, result.Status)

	var row models.StoreModel
	require.NoError(t, env.db.Where("id = ?", store.ID).Take(&row).Error)
	assert.Equal(t, "Renamed Street", row.Name)
	assert.Equal(t, 2, row.Version)

	records, err := env.changeLog.HistorySince(ctx, "stores", store.ID, baseVersion)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, syncdomain.OperationUpdate, records[0].Operation)
}

func TestPushService_Push_AppliedDelete(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	store := env.seedStore(t, ctx, tenantID)
	baseVersion, err := env.changeLog.MaxCommittedVersion(ctx)
	require.NoError(t, err)

	result, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-3",
		TableName:      "stores",
		RowID:          store.ID,
		Operation:      syncdomain.OperationDelete,
		BaseVersion:    baseVersion,
	})

	require.NoError(t, err)
	assert.Equal(t, PushStatusApplied, result.Status)

	var count int64
	require.NoError(t, env.db.Model(&models.StoreModel{}).Where("id = ?", store.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var tombstones int64
	require.NoError(t, env.db.Model(&models.TombstoneModel{}).Count(&tombstones).Error)
	assert.Equal(t, int64(1), tombstones)
}

func TestPushService_Push_DeleteAbsentRowIsNoOp(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	result, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-4",
		TableName:      "stores",
		RowID:          uuid.New(),
		Operation:      syncdomain.OperationDelete,
		BaseVersion:    0,
	})

	require.NoError(t, err)
	assert.Equal(t, PushStatusApplied, result.Status)
	assert.Equal(t, int64(0), env.changeRecordCount(t))
}

func TestPushService_Push_Duplicate(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	rowID := uuid.New()
	req := PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-5",
		TableName:      "stores",
		RowID:          rowID,
		Operation:      syncdomain.OperationInsert,
		BaseVersion:    0,
		Payload:        storeDocument(tenantID, rowID, "Corner Shop"),
	}

	first, err := env.service.Push(ctx, req)
	require.NoError(t, err)
	require.Equal(t, PushStatusApplied, first.Status)
	recorded := env.changeRecordCount(t)

	second, err := env.service.Push(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, PushStatusDuplicate, second.Status)
	assert.Equal(t, recorded, env.changeRecordCount(t), "a retried submission must not be applied again")
}

func TestPushService_Push_Conflicted(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	// Server history for this row has moved past the client's base version.
	store := env.seedStore(t, ctx, tenantID)

	result, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-6",
		TableName:      "stores",
		RowID:          store.ID,
		Operation:      syncdomain.OperationUpdate,
		BaseVersion:    0,
		Payload: syncdomain.Document{
			"name": "Stale Rename",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, PushStatusConflicted, result.Status)
	require.NotNil(t, result.ConflictID)

	// The divergent edit was never applied.
	var row models.StoreModel
	require.NoError(t, env.db.Where("id = ?", store.ID).Take(&row).Error)
	assert.Equal(t, "Main Street", row.Name)

	conflict, err := env.conflicts.FindByID(ctx, *result.ConflictID)
	require.NoError(t, err)
	assert.Equal(t, "stores", conflict.TableName)
	assert.Equal(t, store.ID, conflict.RowID)
	assert.Equal(t, "Stale Rename", conflict.ClientPayload["name"])
	assert.Equal(t, "Main Street", conflict.ServerPayload["name"])
	assert.Nil(t, conflict.ResolvedAt)

	// Retrying the same doomed submission is deduplicated, not re-flagged.
	again, err := env.service.Push(ctx, PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-6",
		TableName:      "stores",
		RowID:          store.ID,
		Operation:      syncdomain.OperationUpdate,
		BaseVersion:    0,
		Payload:        syncdomain.Document{"name": "Stale Rename"},
	})
	require.NoError(t, err)
	assert.Equal(t, PushStatusDuplicate, again.Status)
}

func TestPushService_Push_Validation(t *testing.T) {
	env := newPushEnv(t)
	tenantID := uuid.New()
	ctx := accessContext(tenantID)

	base := PushRequest{
		ClientID:       "register-1",
		ClientChangeID: "edit-7",
		TableName:      "stores",
		RowID:          uuid.New(),
		Operation:      syncdomain.OperationInsert,
		Payload:        syncdomain.Document{"name": "X"},
	}

	t.Run("missing access context", func(t *testing.T) {
		_, err := env.service.Push(context.Background(), base)
		assert.ErrorIs(t, err, shared.ErrAccessContextMissing)
	})

	t.Run("missing client id", func(t *testing.T) {
		req := base
		req.ClientID = ""
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("missing client change id", func(t *testing.T) {
		req := base
		req.ClientChangeID = ""
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("unknown operation", func(t *testing.T) {
		req := base
		req.Operation = "X"
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("untracked table", func(t *testing.T) {
		req := base
		req.TableName = "orders"
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrUntrackedTable)
	})

	t.Run("negative base version", func(t *testing.T) {
		req := base
		req.BaseVersion = -1
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("missing payload for insert", func(t *testing.T) {
		req := base
		req.Payload = nil
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("payload claiming a foreign tenant", func(t *testing.T) {
		req := base
		req.Payload = syncdomain.Document{"tenant_id": uuid.New().String(), "name": "X"}
		_, err := env.service.Push(ctx, req)
		assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)
	})

	assert.Equal(t, int64(0), env.changeRecordCount(t), "rejected submissions must not touch the log")
}
