package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormAuditLogRepository implements AuditLogRepository using GORM. Entries
// are append-only; nothing here updates or rewrites them.
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GORM-based audit log repository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormAuditLogRepository) WithTx(tx *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: tx}
}

// Append writes one audit entry
func (r *GormAuditLogRepository) Append(ctx context.Context, entry *syncdomain.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(models.AuditLogModelFromDomain(entry)).Error
}

// FindByObject returns the audit trail of a single row, newest first
func (r *GormAuditLogRepository) FindByObject(ctx context.Context, table string, objectID uuid.UUID, limit int) ([]*syncdomain.AuditLogEntry, error) {
	var rows []*models.AuditLogModel
	err := r.db.WithContext(ctx).
		Where("object_table = ? AND object_id = ?", table, objectID).
		Order("changed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*syncdomain.AuditLogEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.ToDomain()
	}
	return entries, nil
}

// PurgeOlderThan deletes at most batch entries older than the cutoff. Audit
// retention is a deliberate, separate maintenance decision with a much longer
// window than sync retention.
func (r *GormAuditLogRepository) PurgeOlderThan(ctx context.Context, before time.Time, batch int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.WithContext(ctx).
			Model(&models.AuditLogModel{}).
			Select("id").
			Where("changed_at < ?", before).
			Order("id ASC").
			Limit(batch),
		).
		Delete(&models.AuditLogModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormAuditLogRepository implements AuditLogRepository
var _ syncdomain.AuditLogRepository = (*GormAuditLogRepository)(nil)
