package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// openTestDB opens an isolated in-memory sqlite database with the full sync
// schema. A single connection keeps the in-memory database alive and visible
// across transactions.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.ChangeRecordModel{},
		&models.TombstoneModel{},
		&models.AuditLogModel{},
		&models.SyncSessionModel{},
		&models.SyncConflictModel{},
		&models.StoreModel{},
		&models.ProductModel{},
	))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
