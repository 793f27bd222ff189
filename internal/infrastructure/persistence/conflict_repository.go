package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormSyncConflictRepository implements SyncConflictRepository using GORM
type GormSyncConflictRepository struct {
	db *gorm.DB
}

// NewGormSyncConflictRepository creates a new GORM-based sync conflict repository
func NewGormSyncConflictRepository(db *gorm.DB) *GormSyncConflictRepository {
	return &GormSyncConflictRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormSyncConflictRepository) WithTx(tx *gorm.DB) *GormSyncConflictRepository {
	return &GormSyncConflictRepository{db: tx}
}

// Save persists a newly flagged conflict
func (r *GormSyncConflictRepository) Save(ctx context.Context, conflict *syncdomain.SyncConflict) error {
	return r.db.WithContext(ctx).Create(models.SyncConflictModelFromDomain(conflict)).Error
}

// FindByID retrieves a conflict by its id
func (r *GormSyncConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*syncdomain.SyncConflict, error) {
	var model models.SyncConflictModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpen returns unresolved conflicts for a tenant, oldest first
func (r *GormSyncConflictRepository) FindOpen(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]*syncdomain.SyncConflict, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("tenant_id = ? AND resolved_at IS NULL", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*models.SyncConflictModel
	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	conflicts := make([]*syncdomain.SyncConflict, len(rows))
	for i, row := range rows {
		conflicts[i] = row.ToDomain()
	}
	return conflicts, total, nil
}

// Update persists a resolution on an existing conflict
func (r *GormSyncConflictRepository) Update(ctx context.Context, conflict *syncdomain.SyncConflict) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("id = ?", conflict.ID).
		Updates(map[string]any{
			"resolved_at": conflict.ResolvedAt,
			"resolution":  conflict.Resolution,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormSyncConflictRepository implements SyncConflictRepository
var _ syncdomain.SyncConflictRepository = (*GormSyncConflictRepository)(nil)
