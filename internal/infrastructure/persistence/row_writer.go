package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	syncdomain "github.com/pos/backend/internal/domain/sync"
)

// RowWriter applies a column-keyed document to a tracked table through the
// normal GORM write path, so the change recorder fires for every write it
// performs. Accepted client pushes and conflict resolutions go through here:
// they must leave their own change record and audit entry like any other
// mutation.
type RowWriter struct {
	db       *gorm.DB
	registry *TrackedRegistry
}

// NewRowWriter creates a row writer over the given connection
func NewRowWriter(db *gorm.DB, registry *TrackedRegistry) *RowWriter {
	return &RowWriter{db: db, registry: registry}
}

// WithTx returns a row writer bound to the given transaction
func (w *RowWriter) WithTx(tx *gorm.DB) *RowWriter {
	return &RowWriter{db: tx, registry: w.registry}
}

// Upsert inserts or updates the row identified by rowID with the document's
// values. The document's own id/version/timestamp columns are ignored on
// update; the recorder owns the version counter.
func (w *RowWriter) Upsert(ctx context.Context, table string, rowID uuid.UUID, doc syncdomain.Document) error {
	proto, err := w.registry.Prototype(table)
	if err != nil {
		return err
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(proto).Where("id = ?", rowID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to probe %s row: %w", table, err)
		}

		values := make(map[string]any, len(doc))
		for k, v := range doc {
			values[k] = v
		}

		if count == 0 {
			values["id"] = rowID
			if err := tx.Model(proto).Create(values).Error; err != nil {
				return fmt.Errorf("failed to insert %s row: %w", table, err)
			}
			return nil
		}

		delete(values, "id")
		delete(values, "version")
		delete(values, "created_at")
		delete(values, "updated_at")
		result := tx.Model(proto).Where("id = ?", rowID).Updates(values)
		if result.Error != nil {
			return fmt.Errorf("failed to update %s row: %w", table, result.Error)
		}
		return nil
	})
}

// Delete removes the row if present. Deleting an absent row is a no-op and
// records nothing.
func (w *RowWriter) Delete(ctx context.Context, table string, rowID uuid.UUID) error {
	proto, err := w.registry.Prototype(table)
	if err != nil {
		return err
	}
	result := w.db.WithContext(ctx).Where("id = ?", rowID).Delete(proto)
	if result.Error != nil {
		return fmt.Errorf("failed to delete %s row: %w", table, result.Error)
	}
	return nil
}
