package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormSyncSessionRepository implements SyncSessionRepository using GORM
type GormSyncSessionRepository struct {
	db *gorm.DB
}

// NewGormSyncSessionRepository creates a new GORM-based sync session repository
func NewGormSyncSessionRepository(db *gorm.DB) *GormSyncSessionRepository {
	return &GormSyncSessionRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormSyncSessionRepository) WithTx(tx *gorm.DB) *GormSyncSessionRepository {
	return &GormSyncSessionRepository{db: tx}
}

// FindOrCreate returns the client's session within the tenant/store scope,
// creating it with a zero cursor on first contact
func (r *GormSyncSessionRepository) FindOrCreate(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, clientID string) (*syncdomain.SyncSession, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ? AND client_id = ?", tenantID, clientID)
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	} else {
		query = query.Where("store_id IS NULL")
	}

	var model models.SyncSessionModel
	err := query.First(&model).Error
	if err == nil {
		return model.ToDomain(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session := syncdomain.NewSyncSession(tenantID, storeID, clientID)
	if err := r.db.WithContext(ctx).Create(models.SyncSessionModelFromDomain(session)).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// Advance moves the cursor forward. The guard in the WHERE clause makes the
// write a no-op when the stored cursor is already ahead, which surfaces as
// ErrCursorRegression instead of silently rewinding a shared cursor.
func (r *GormSyncSessionRepository) Advance(ctx context.Context, sessionID uuid.UUID, version int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncSessionModel{}).
		Where("id = ? AND last_synced_version <= ?", sessionID, version).
		Updates(map[string]any{
			"last_synced_version": version,
			"last_seen":           time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish an unknown session from a regression attempt
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.SyncSessionModel{}).
			Where("id = ?", sessionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrCursorRegression
	}
	return nil
}

// Touch updates last_seen without moving the cursor
func (r *GormSyncSessionRepository) Touch(ctx context.Context, sessionID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncSessionModel{}).
		Where("id = ?", sessionID).
		Update("last_seen", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MinActiveCursor returns the lowest cursor among sessions seen after
// activeSince. Retention uses it as the purge floor so no active client can
// have log records deleted out from under its next pull.
func (r *GormSyncSessionRepository) MinActiveCursor(ctx context.Context, activeSince time.Time) (int64, bool, error) {
	var cursor *int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncSessionModel{}).
		Select("MIN(last_synced_version)").
		Where("last_seen > ?", activeSince).
		Scan(&cursor).Error
	if err != nil {
		return 0, false, err
	}
	if cursor == nil {
		return 0, false, nil
	}
	return *cursor, true, nil
}

// Ensure GormSyncSessionRepository implements SyncSessionRepository
var _ syncdomain.SyncSessionRepository = (*GormSyncSessionRepository)(nil)
