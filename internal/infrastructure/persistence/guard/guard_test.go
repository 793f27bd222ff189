package guard

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
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

func openGuardedDB(t *testing.T, required bool) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.StoreModel{}))
	require.NoError(t, New(required).Register(db))
	return db
}

func seedStore(t *testing.T, db *gorm.DB, tenantID uuid.UUID) *models.StoreModel {
	t.Helper()
	now := time.Now()
	store := &models.StoreModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Version:   1,
			TenantID:  tenantID,
		},
		Code: "S-001",
		Name: "Main Street",
	}
	// Seed without an access context; the guard is not required here
	require.NoError(t, db.WithContext(context.Background()).Create(store).Error)
	return store
}

func accessCtx(tenantID uuid.UUID) context.Context {
	return shared.WithAccess(context.Background(), shared.AccessContext{TenantID: tenantID})
}

func TestGuard_ScopesReadsToCallerTenant(t *testing.T) {
	db := openGuardedDB(t, false)
	tenantID := uuid.New()
	otherTenant := uuid.New()
	mine := seedStore(t, db, tenantID)
	seedStore(t, db, otherTenant)

	var rows []models.StoreModel
	require.NoError(t, db.WithContext(accessCtx(tenantID)).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0].ID)
}

func TestGuard_ReadOfForeignRowComesUpEmpty(t *testing.T) {
	db := openGuardedDB(t, false)
	foreign := seedStore(t, db, uuid.New())

	var row models.StoreModel
	err := db.WithContext(accessCtx(uuid.New())).Where("id = ?", foreign.ID).Take(&row).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGuard_RejectsCreateClaimingForeignTenant(t *testing.T) {
	db := openGuardedDB(t, false)
	callerTenant := uuid.New()
	foreignTenant := uuid.New()

	now := time.Now()
	store := &models.StoreModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Version:   1,
			TenantID:  foreignTenant,
		},
		Code: "S-002",
		Name: "Smuggled",
	}
	err := db.WithContext(accessCtx(callerTenant)).Create(store).Error
	assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)

	var count int64
	require.NoError(t, db.Model(&models.StoreModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGuard_RejectsUpdateOfForeignRow(t *testing.T) {
	db := openGuardedDB(t, false)
	foreign := seedStore(t, db, uuid.New())

	err := db.WithContext(accessCtx(uuid.New())).
		Model(&models.StoreModel{}).
		Where("id = ?", foreign.ID).
		Updates(map[string]any{"name": "hijacked"}).Error
	assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)

	var row models.StoreModel
	require.NoError(t, db.Where("id = ?", foreign.ID).Take(&row).Error)
	assert.Equal(t, "Main Street", row.Name)
}

func TestGuard_RejectsDeleteOfForeignRow(t *testing.T) {
	db := openGuardedDB(t, false)
	foreign := seedStore(t, db, uuid.New())

	err := db.WithContext(accessCtx(uuid.New())).
		Delete(&models.StoreModel{}, "id = ?", foreign.ID).Error
	assert.ErrorIs(t, err, shared.ErrTenantIsolationViolation)

	var count int64
	require.NoError(t, db.Model(&models.StoreModel{}).Where("id = ?", foreign.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGuard_AllowsWritesWithinOwnTenant(t *testing.T) {
	db := openGuardedDB(t, false)
	tenantID := uuid.New()
	store := seedStore(t, db, tenantID)

	require.NoError(t, db.WithContext(accessCtx(tenantID)).
		Model(&models.StoreModel{}).
		Where("id = ?", store.ID).
		Updates(map[string]any{"name": "Renamed"}).Error)

	var row models.StoreModel
	require.NoError(t, db.Where("id = ?", store.ID).Take(&row).Error)
	assert.Equal(t, "Renamed", row.Name)
}

func TestGuard_SuperAdminCrossesTenants(t *testing.T) {
	db := openGuardedDB(t, false)
	foreign := seedStore(t, db, uuid.New())

	ctx := shared.WithAccess(context.Background(), shared.AccessContext{
		TenantID:     uuid.New(),
		IsSuperAdmin: true,
	})
	require.NoError(t, db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Where("id = ?", foreign.ID).
		Updates(map[string]any{"name": "admin edit"}).Error)
}

func TestGuard_RequiredFailsWithoutAccessContext(t *testing.T) {
	db := openGuardedDB(t, true)

	now := time.Now()
	store := &models.StoreModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Version:   1,
			TenantID:  uuid.New(),
		},
		Code: "S-003",
		Name: "No Context",
	}
	err := db.WithContext(context.Background()).Create(store).Error
	assert.ErrorIs(t, err, shared.ErrAccessContextMissing)
}

func TestGuard_NotRequiredAllowsMaintenanceWrites(t *testing.T) {
	db := openGuardedDB(t, false)
	store := seedStore(t, db, uuid.New())

	// No access context: retention and other maintenance jobs run like this
	require.NoError(t, db.WithContext(context.Background()).
		Delete(&models.StoreModel{}, "id = ?", store.ID).Error)
}
