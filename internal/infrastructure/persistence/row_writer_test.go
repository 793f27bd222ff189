package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

func TestRowWriter_Upsert_Insert(t *testing.T) {
	db := openTestDB(t)
	registry := NewTrackedRegistry()
	require.NoError(t, registry.Register(&models.StoreModel{}))
	writer := NewRowWriter(db, registry)
	ctx := context.Background()

	rowID := uuid.New()
	tenantID := uuid.New()
	doc := syncdomain.Document{
		"tenant_id":  tenantID.String(),
		"code":       "S-001",
		"name":       "Main Street",
		"version":    1,
		"active":     true,
		"created_at": time.Now(),
		"updated_at": time.Now(),
	}

	require.NoError(t, writer.Upsert(ctx, "stores", rowID, doc))

	var row models.StoreModel
	require.NoError(t, db.Where("id = ?", rowID).Take(&row).Error)
	assert.Equal(t, "Main Street", row.Name)
	assert.Equal(t, tenantID, row.TenantID)
	assert.Equal(t, 1, row.Version)
}

func TestRowWriter_Upsert_Update(t *testing.T) {
	db := openTestDB(t)
	registry := NewTrackedRegistry()
	require.NoError(t, registry.Register(&models.StoreModel{}))
	writer := NewRowWriter(db, registry)
	ctx := context.Background()

	rowID := uuid.New()
	tenantID := uuid.New()
	existing := models.StoreModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: rowID, CreatedAt: time.Now(), UpdatedAt: time.Now()},
			Version:   3,
			TenantID:  tenantID,
		},
		Code: "S-001",
		Name: "Main Street",
	}
	require.NoError(t, db.Create(&existing).Error)

	// The document's id and version columns are ignored on update
	doc := syncdomain.Document{
		"id":      uuid.New().String(),
		"version": 99,
		"name":    "Renamed Street",
	}
	require.NoError(t, writer.Upsert(ctx, "stores", rowID, doc))

	var row models.StoreModel
	require.NoError(t, db.Where("id = ?", rowID).Take(&row).Error)
	assert.Equal(t, "Renamed Street", row.Name)
	assert.Equal(t, 3, row.Version)
	assert.Equal(t, "S-001", row.Code)
}

func TestRowWriter_Upsert_UntrackedTable(t *testing.T) {
	db := openTestDB(t)
	registry := NewTrackedRegistry()
	writer := NewRowWriter(db, registry)

	err := writer.Upsert(context.Background(), "orders", uuid.New(), syncdomain.Document{})
	assert.ErrorIs(t, err, shared.ErrUntrackedTable)
}

func TestRowWriter_Delete(t *testing.T) {
	db := openTestDB(t)
	registry := NewTrackedRegistry()
	require.NoError(t, registry.Register(&models.StoreModel{}))
	writer := NewRowWriter(db, registry)
	ctx := context.Background()

	rowID := uuid.New()
	existing := models.StoreModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: rowID, CreatedAt: time.Now(), UpdatedAt: time.Now()},
			Version:   1,
			TenantID:  uuid.New(),
		},
		Code: "S-001",
		Name: "Main Street",
	}
	require.NoError(t, db.Create(&existing).Error)

	require.NoError(t, writer.Delete(ctx, "stores", rowID))

	var count int64
	require.NoError(t, db.Model(&models.StoreModel{}).Where("id = ?", rowID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// Deleting an absent row is a no-op
	require.NoError(t, writer.Delete(ctx, "stores", rowID))
}
