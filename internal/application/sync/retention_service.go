package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/config"
	"github.com/pos/backend/internal/infrastructure/logger"
)

// RetentionService prunes aged change records, tombstones, and audit entries.
// The change log purge is floored at the lowest cursor of any session still
// considered active, so a slow or briefly offline client never loses records
// it has yet to pull. Sessions idle past the abandonment window stop pinning
// retention; such a client must re-register and resync from scratch.
type RetentionService struct {
	changeLog  syncdomain.ChangeLogRepository
	tombstones syncdomain.TombstoneRepository
	audit      syncdomain.AuditLogRepository
	sessions   syncdomain.SyncSessionRepository
	cfg        config.SyncConfig
	logger     *zap.Logger
	metrics    Metrics
}

// RetentionServiceOption configures a RetentionService
type RetentionServiceOption func(*RetentionService)

// WithRetentionLogger sets the service logger
func WithRetentionLogger(log *zap.Logger) RetentionServiceOption {
	return func(s *RetentionService) { s.logger = log }
}

// WithRetentionMetrics sets the service metrics sink
func WithRetentionMetrics(m Metrics) RetentionServiceOption {
	return func(s *RetentionService) { s.metrics = m }
}

// NewRetentionService creates a new RetentionService
func NewRetentionService(
	changeLog syncdomain.ChangeLogRepository,
	tombstones syncdomain.TombstoneRepository,
	audit syncdomain.AuditLogRepository,
	sessions syncdomain.SyncSessionRepository,
	cfg config.SyncConfig,
	opts ...RetentionServiceOption,
) *RetentionService {
	s := &RetentionService{
		changeLog:  changeLog,
		tombstones: tombstones,
		audit:      audit,
		sessions:   sessions,
		cfg:        cfg,
		logger:     zap.NewNop(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunRetention executes one full retention sweep. Each table is purged in
// bounded batches outside any request transaction; a sweep cut short by its
// context leaves the remainder for the next run.
func (s *RetentionService) RunRetention(ctx context.Context) error {
	now := time.Now()

	floor, err := s.purgeFloor(ctx, now)
	if err != nil {
		return err
	}

	changeLogPurged, err := s.purgeChangeLog(ctx, now.Add(-s.cfg.ChangeLogRetention), floor)
	if err != nil {
		return err
	}

	tombstonesPurged, err := s.purgeBatches(ctx, "tombstones", func(ctx context.Context) (int64, error) {
		return s.tombstones.PurgeOlderThan(ctx, now.Add(-s.cfg.TombstoneRetention), s.cfg.RetentionBatchSize)
	})
	if err != nil {
		return err
	}

	// Audit retention runs on its own, much longer window, independent of
	// sync consumption and the cursor floor.
	auditPurged, err := s.purgeBatches(ctx, "audit_log", func(ctx context.Context) (int64, error) {
		return s.audit.PurgeOlderThan(ctx, now.Add(-s.cfg.AuditLogRetention), s.cfg.RetentionBatchSize)
	})
	if err != nil {
		return err
	}

	if changeLogPurged+tombstonesPurged+auditPurged > 0 {
		logger.WithLogger(ctx, s.logger).Info("Retention sweep purged rows",
			zap.Int64("change_log", changeLogPurged),
			zap.Int64("tombstones", tombstonesPurged),
			zap.Int64("audit_log", auditPurged),
			zap.Int64("cursor_floor", floor),
		)
	}

	return nil
}

// purgeFloor determines the highest change version safe to purge up to. With
// no active session every committed record is fair game (subject to age);
// otherwise the minimum active cursor pins the log.
func (s *RetentionService) purgeFloor(ctx context.Context, now time.Time) (int64, error) {
	activeSince := now.Add(-s.cfg.SessionAbandonAfter)
	cursor, ok, err := s.sessions.MinActiveCursor(ctx, activeSince)
	if err != nil {
		return 0, fmt.Errorf("failed to determine retention floor: %w", err)
	}
	if ok {
		return cursor, nil
	}

	maxVersion, err := s.changeLog.MaxCommittedVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read max committed version: %w", err)
	}
	return maxVersion, nil
}

func (s *RetentionService) purgeChangeLog(ctx context.Context, before time.Time, floor int64) (int64, error) {
	return s.purgeBatches(ctx, "change_log", func(ctx context.Context) (int64, error) {
		return s.changeLog.PurgeOlderThan(ctx, before, floor, s.cfg.RetentionBatchSize)
	})
}

// purgeBatches repeats a bounded delete until it comes up short or the
// context ends
func (s *RetentionService) purgeBatches(ctx context.Context, table string, purge func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := purge(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		total += deleted
		s.metrics.RecordRowsPurged(ctx, table, deleted)

		if deleted < int64(s.cfg.RetentionBatchSize) {
			return total, nil
		}
	}
}
