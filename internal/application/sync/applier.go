package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	applog "github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/persistence"
)

// BatchApplier replays pulled change batches into a client-side store. It is
// the terminal half of the pull protocol: records are applied strictly in
// version order, inserts and updates upsert by row id, deletes remove the row
// if present. Payloads are full snapshots, so applying the same batch twice
// converges to the same state.
//
// The whole batch is applied in one transaction. A crash mid-batch leaves the
// local store at the pre-batch state with the cursor unchanged, so the client
// safely re-pulls.
type BatchApplier struct {
	db       *gorm.DB
	registry *persistence.TrackedRegistry
	logger   *zap.Logger
}

// NewBatchApplier creates an applier over the client's local store
func NewBatchApplier(db *gorm.DB, registry *persistence.TrackedRegistry, logger *zap.Logger) *BatchApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchApplier{db: db, registry: registry, logger: logger}
}

// Apply replays one pulled batch. It returns the cursor the client should
// acknowledge: the last applied change version, or sinceVersion for an empty
// batch. Records out of order or below the cursor fail the whole batch.
func (a *BatchApplier) Apply(ctx context.Context, sinceVersion int64, records []ChangeResponse) (int64, error) {
	if len(records) == 0 {
		return sinceVersion, nil
	}

	prev := sinceVersion
	for _, rec := range records {
		if rec.ChangeVersion <= prev {
			return sinceVersion, fmt.Errorf("%w: change version %d not above %d",
				shared.ErrInvalidInput, rec.ChangeVersion, prev)
		}
		prev = rec.ChangeVersion
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := a.applyOne(ctx, tx, rec); err != nil {
				return fmt.Errorf("failed to apply change %d on %s: %w",
					rec.ChangeVersion, rec.TableName, err)
			}
		}
		return nil
	})
	if err != nil {
		return sinceVersion, err
	}

	cursor := records[len(records)-1].ChangeVersion
	applog.WithLogger(ctx, a.logger).Debug("Applied pull batch",
		zap.Int("records", len(records)),
		zap.Int64("cursor", cursor),
	)
	return cursor, nil
}

func (a *BatchApplier) applyOne(ctx context.Context, tx *gorm.DB, rec ChangeResponse) error {
	proto, err := a.registry.Prototype(rec.TableName)
	if err != nil {
		return err
	}

	switch syncdomain.Operation(rec.Operation) {
	case syncdomain.OperationDelete:
		// Deleting a row the client never received is a valid no-op; the
		// tombstone exists precisely for that case.
		return tx.Where("id = ?", rec.RowID).Delete(proto).Error

	case syncdomain.OperationInsert, syncdomain.OperationUpdate:
		var count int64
		if err := tx.Model(proto).Where("id = ?", rec.RowID).Count(&count).Error; err != nil {
			return err
		}

		// The snapshot is replayed verbatim, version column included, so the
		// local row mirrors the server's committed state exactly.
		values := make(map[string]any, len(rec.Payload)+1)
		for k, v := range rec.Payload {
			values[k] = v
		}
		values["id"] = rec.RowID

		if count == 0 {
			return tx.Model(proto).Create(values).Error
		}
		delete(values, "id")
		return tx.Model(proto).Where("id = ?", rec.RowID).Updates(values).Error

	default:
		return fmt.Errorf("%w: unknown operation %q", shared.ErrInvalidInput, rec.Operation)
	}
}
