package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormTombstoneRepository implements TombstoneRepository using GORM
type GormTombstoneRepository struct {
	db *gorm.DB
}

// NewGormTombstoneRepository creates a new GORM-based tombstone repository
func NewGormTombstoneRepository(db *gorm.DB) *GormTombstoneRepository {
	return &GormTombstoneRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormTombstoneRepository) WithTx(tx *gorm.DB) *GormTombstoneRepository {
	return &GormTombstoneRepository{db: tx}
}

// Append writes one tombstone
func (r *GormTombstoneRepository) Append(ctx context.Context, tombstone *syncdomain.Tombstone) error {
	return r.db.WithContext(ctx).Create(models.TombstoneModelFromDomain(tombstone)).Error
}

// FindSince returns scope-filtered tombstones deleted after the given time
func (r *GormTombstoneRepository) FindSince(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, since time.Time, limit int) ([]*syncdomain.Tombstone, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("deleted_at > ?", since)

	if storeID != nil {
		query = query.Where("store_id = ? OR store_id IS NULL", *storeID)
	}

	var rows []*models.TombstoneModel
	err := query.
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	tombstones := make([]*syncdomain.Tombstone, len(rows))
	for i, row := range rows {
		tombstones[i] = row.ToDomain()
	}
	return tombstones, nil
}

// PurgeOlderThan deletes at most batch tombstones older than the cutoff
func (r *GormTombstoneRepository) PurgeOlderThan(ctx context.Context, before time.Time, batch int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.WithContext(ctx).
			Model(&models.TombstoneModel{}).
			Select("id").
			Where("deleted_at < ?", before).
			Order("id ASC").
			Limit(batch),
		).
		Delete(&models.TombstoneModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormTombstoneRepository implements TombstoneRepository
var _ syncdomain.TombstoneRepository = (*GormTombstoneRepository)(nil)
