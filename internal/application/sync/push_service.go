package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/telemetry"
)

// PushService accepts offline edits submitted back by sync clients. A clean
// push is applied through the tracked write path, so it produces its own
// change record and audit entry like any server-side mutation. An edit whose
// row has server history past the client's base version is never applied:
// it is flagged as a SyncConflict and blocked until an external decision.
type PushService struct {
	db        *persistence.Database
	writer    *persistence.RowWriter
	registry  *persistence.TrackedRegistry
	changeLog syncdomain.ChangeLogRepository
	conflicts syncdomain.SyncConflictRepository
	idem      shared.IdempotencyStore
	idemCfg   shared.IdempotencyConfig
	logger    *zap.Logger
	metrics   Metrics
}

// PushServiceOption configures a PushService
type PushServiceOption func(*PushService)

// WithPushLogger sets the service logger
func WithPushLogger(log *zap.Logger) PushServiceOption {
	return func(s *PushService) { s.logger = log }
}

// WithPushMetrics sets the service metrics sink
func WithPushMetrics(m Metrics) PushServiceOption {
	return func(s *PushService) { s.metrics = m }
}

// WithIdempotencyConfig overrides the push deduplication settings
func WithIdempotencyConfig(cfg shared.IdempotencyConfig) PushServiceOption {
	return func(s *PushService) { s.idemCfg = cfg }
}

// NewPushService creates a new PushService
func NewPushService(
	db *persistence.Database,
	writer *persistence.RowWriter,
	registry *persistence.TrackedRegistry,
	changeLog syncdomain.ChangeLogRepository,
	conflicts syncdomain.SyncConflictRepository,
	idem shared.IdempotencyStore,
	opts ...PushServiceOption,
) *PushService {
	s := &PushService{
		db:        db,
		writer:    writer,
		registry:  registry,
		changeLog: changeLog,
		conflicts: conflicts,
		idem:      idem,
		idemCfg:   shared.DefaultIdempotencyConfig(),
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push processes one submitted offline edit. Retried submissions with the
// same client change id are deduplicated; divergent edits are flagged and
// blocked; everything else is applied through the tracked write path.
func (s *PushService) Push(ctx context.Context, req PushRequest) (*PushResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "push",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, req.ClientID),
		telemetry.WithAttribute(telemetry.SpanAttrTableName, req.TableName),
		telemetry.WithAttribute(telemetry.SpanAttrRowID, req.RowID),
	)
	defer span.End()

	start := time.Now()

	access, err := shared.MustAccess(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.validate(access, req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	dedupeKey := req.ClientID + ":" + req.ClientChangeID
	if s.idemCfg.Enabled && s.idem != nil {
		processed, err := s.idem.IsProcessed(ctx, dedupeKey)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to check push idempotency: %w", err)
		}
		if processed {
			s.metrics.RecordPushBatch(ctx, req.ClientID, telemetry.PushOutcomeDuplicate, time.Since(start))
			logger.WithLogger(ctx, s.logger).Debug("Ignored duplicate push submission",
				zap.String("client_id", req.ClientID),
				zap.String("client_change_id", req.ClientChangeID),
			)
			return &PushResult{Status: PushStatusDuplicate}, nil
		}
	}

	history, err := s.changeLog.HistorySince(ctx, req.TableName, req.RowID, req.BaseVersion)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load row history: %w", err)
	}

	var result *PushResult
	if len(history) > 0 {
		result, err = s.flagConflict(ctx, req, history)
	} else {
		result, err = s.apply(ctx, req)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordPushBatch(ctx, req.ClientID, telemetry.PushOutcomeFailed, time.Since(start))
		return nil, err
	}

	s.markProcessed(ctx, dedupeKey)

	outcome := telemetry.PushOutcomeApplied
	if result.Status == PushStatusConflicted {
		outcome = telemetry.PushOutcomeConflicted
	}
	s.metrics.RecordPushBatch(ctx, req.ClientID, outcome, time.Since(start))
	s.metrics.RecordPushChange(ctx, req.TableName, outcome)

	return result, nil
}

func (s *PushService) validate(access shared.AccessContext, req PushRequest) error {
	if req.ClientID == "" || req.ClientChangeID == "" {
		return fmt.Errorf("%w: client id and client change id are required", shared.ErrInvalidInput)
	}
	if !req.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", shared.ErrInvalidInput, string(req.Operation))
	}
	if !s.registry.IsTracked(req.TableName) {
		return fmt.Errorf("%w: %s", shared.ErrUntrackedTable, req.TableName)
	}
	if req.BaseVersion < 0 {
		return fmt.Errorf("%w: base version must not be negative", shared.ErrInvalidInput)
	}
	if req.Operation != syncdomain.OperationDelete && len(req.Payload) == 0 {
		return fmt.Errorf("%w: payload is required for insert and update", shared.ErrInvalidInput)
	}
	if tenantID, ok := req.Payload.UUID("tenant_id"); ok && !access.CanAccessTenant(tenantID) {
		return shared.ErrTenantIsolationViolation
	}
	return nil
}

// flagConflict records the divergence without touching the row. Both payloads
// are captured: the client's edit and the latest server snapshot from the
// history that outran it.
func (s *PushService) flagConflict(ctx context.Context, req PushRequest, history []*syncdomain.ChangeRecord) (*PushResult, error) {
	serverPayload := history[len(history)-1].Payload
	conflict := syncdomain.NewSyncConflict(req.TableName, req.RowID, req.Payload, serverPayload)

	if err := s.conflicts.Save(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to save sync conflict: %w", err)
	}

	s.metrics.RecordConflictFlagged(ctx, req.TableName)
	logger.WithLogger(ctx, s.logger).Info("Flagged sync conflict",
		zap.String("client_id", req.ClientID),
		zap.String("table", req.TableName),
		zap.String("row_id", req.RowID.String()),
		zap.Int64("base_version", req.BaseVersion),
		zap.Int64("server_version", history[len(history)-1].ChangeVersion),
		zap.String("conflict_id", conflict.ID.String()),
	)

	return &PushResult{Status: PushStatusConflicted, ConflictID: &conflict.ID}, nil
}

func (s *PushService) apply(ctx context.Context, req PushRequest) (*PushResult, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		writer := s.writer.WithTx(tx)
		switch req.Operation {
		case syncdomain.OperationDelete:
			return writer.Delete(ctx, req.TableName, req.RowID)
		default:
			return writer.Upsert(ctx, req.TableName, req.RowID, req.Payload)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply push: %w", err)
	}

	logger.WithLogger(ctx, s.logger).Debug("Applied push",
		zap.String("client_id", req.ClientID),
		zap.String("table", req.TableName),
		zap.String("row_id", req.RowID.String()),
		zap.String("operation", string(req.Operation)),
	)

	return &PushResult{Status: PushStatusApplied}, nil
}

// markProcessed remembers the submission key after the outcome is durable.
// A failure here only risks re-processing on retry, which the conflict check
// and idempotent row writes already tolerate.
func (s *PushService) markProcessed(ctx context.Context, key string) {
	if !s.idemCfg.Enabled || s.idem == nil {
		return
	}
	if _, err := s.idem.MarkProcessed(ctx, key, s.idemCfg.TTL); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("Failed to mark push submission as processed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
