package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormChangeLogRepository implements ChangeLogRepository using GORM
type GormChangeLogRepository struct {
	db *gorm.DB
}

// NewGormChangeLogRepository creates a new GORM-based change log repository
func NewGormChangeLogRepository(db *gorm.DB) *GormChangeLogRepository {
	return &GormChangeLogRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormChangeLogRepository) WithTx(tx *gorm.DB) *GormChangeLogRepository {
	return &GormChangeLogRepository{db: tx}
}

// Append writes one change record
func (r *GormChangeLogRepository) Append(ctx context.Context, record *syncdomain.ChangeRecord) error {
	return r.db.WithContext(ctx).Create(models.ChangeRecordModelFromDomain(record)).Error
}

// PullBatch returns scope-filtered records after sinceVersion, ascending by
// change version, capped at limit. The whole read runs in one statement, so
// it sees a single committed snapshot and never blocks writers.
func (r *GormChangeLogRepository) PullBatch(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, sinceVersion int64, limit int) ([]*syncdomain.ChangeRecord, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("change_version > ?", sinceVersion)

	if storeID != nil {
		query = query.Where("store_id = ? OR store_id IS NULL", *storeID)
	}

	var rows []*models.ChangeRecordModel
	err := query.
		Order("change_version ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]*syncdomain.ChangeRecord, len(rows))
	for i, row := range rows {
		records[i] = row.ToDomain()
	}
	return records, nil
}

// HistorySince returns one row's records after sinceVersion, ascending
func (r *GormChangeLogRepository) HistorySince(ctx context.Context, table string, rowID uuid.UUID, sinceVersion int64) ([]*syncdomain.ChangeRecord, error) {
	var rows []*models.ChangeRecordModel
	err := r.db.WithContext(ctx).
		Where("table_name = ? AND row_id = ? AND change_version > ?", table, rowID, sinceVersion).
		Order("change_version ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]*syncdomain.ChangeRecord, len(rows))
	for i, row := range rows {
		records[i] = row.ToDomain()
	}
	return records, nil
}

// MaxCommittedVersion returns the highest committed change version, 0 for an empty log
func (r *GormChangeLogRepository) MaxCommittedVersion(ctx context.Context) (int64, error) {
	var max *int64
	err := r.db.WithContext(ctx).
		Model(&models.ChangeRecordModel{}).
		Select("MAX(change_version)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// PurgeOlderThan deletes at most batch records created before the cutoff and
// at or below the version floor. The floor keeps records alive for lagging
// sync cursors regardless of age.
func (r *GormChangeLogRepository) PurgeOlderThan(ctx context.Context, before time.Time, floor int64, batch int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("change_version IN (?)", r.db.WithContext(ctx).
			Model(&models.ChangeRecordModel{}).
			Select("change_version").
			Where("created_at < ? AND change_version <= ?", before, floor).
			Order("change_version ASC").
			Limit(batch),
		).
		Delete(&models.ChangeRecordModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormChangeLogRepository implements ChangeLogRepository
var _ syncdomain.ChangeLogRepository = (*GormChangeLogRepository)(nil)
