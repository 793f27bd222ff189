package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/config"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/telemetry"
)

// PullService serves change batches to sync clients and maintains their
// cursors. Pull never advances a cursor; only an explicit Acknowledge does,
// after the client reports the batch durably applied.
type PullService struct {
	changeLog  syncdomain.ChangeLogRepository
	sessions   syncdomain.SyncSessionRepository
	tombstones syncdomain.TombstoneRepository
	cfg        config.SyncConfig
	logger     *zap.Logger
	metrics    Metrics
}

// PullServiceOption configures a PullService
type PullServiceOption func(*PullService)

// WithPullLogger sets the service logger
func WithPullLogger(log *zap.Logger) PullServiceOption {
	return func(s *PullService) { s.logger = log }
}

// WithPullMetrics sets the service metrics sink
func WithPullMetrics(m Metrics) PullServiceOption {
	return func(s *PullService) { s.metrics = m }
}

// NewPullService creates a new PullService
func NewPullService(
	changeLog syncdomain.ChangeLogRepository,
	sessions syncdomain.SyncSessionRepository,
	tombstones syncdomain.TombstoneRepository,
	cfg config.SyncConfig,
	opts ...PullServiceOption,
) *PullService {
	s := &PullService{
		changeLog:  changeLog,
		sessions:   sessions,
		tombstones: tombstones,
		cfg:        cfg,
		logger:     zap.NewNop(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pull returns the next batch of changes in the caller's tenant/store scope
// with change_version > SinceVersion, ascending, capped at the configured
// batch size. Repeating the same pull at a fixed point in committed history
// yields identical results; a caught-up client gets an empty batch and its
// cursor back, never an error.
func (s *PullService) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "pull",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, req.ClientID),
		telemetry.WithAttribute(telemetry.SpanAttrSinceVersion, req.SinceVersion),
	)
	defer span.End()

	access, err := shared.MustAccess(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", shared.ErrInvalidInput)
	}
	if req.SinceVersion < 0 {
		return nil, fmt.Errorf("%w: since version must not be negative", shared.ErrInvalidInput)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultBatchSize
	}
	if limit > s.cfg.MaxBatchSize {
		limit = s.cfg.MaxBatchSize
	}

	session, err := s.sessions.FindOrCreate(ctx, access.TenantID, access.StoreID, req.ClientID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve sync session: %w", err)
	}

	records, err := s.changeLog.PullBatch(ctx, access.TenantID, access.StoreID, req.SinceVersion, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to pull change batch: %w", err)
	}

	resp := &PullResponse{
		Records:    make([]ChangeResponse, len(records)),
		NextCursor: req.SinceVersion,
		HasMore:    len(records) == limit,
	}
	for i, rec := range records {
		resp.Records[i] = ToChangeResponse(rec)
	}
	if len(records) > 0 {
		resp.NextCursor = records[len(records)-1].ChangeVersion
	}

	log := logger.WithLogger(ctx, s.logger)
	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		log.Warn("Failed to touch sync session",
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
	}

	s.metrics.RecordPullBatch(ctx, req.ClientID, len(records))
	log.Debug("Served pull batch",
		zap.String("client_id", req.ClientID),
		zap.Int64("since_version", req.SinceVersion),
		zap.Int("records", len(records)),
		zap.Int64("next_cursor", resp.NextCursor),
	)

	return resp, nil
}

// Tombstones returns delete markers in the caller's scope newer than the
// requested time, ascending by id. A client whose cursor aged out of change
// log retention re-pulls full state and uses this to drop local rows the
// server deleted in the meantime.
func (s *PullService) Tombstones(ctx context.Context, req TombstoneRequest) ([]TombstoneResponse, error) {
	access, err := shared.MustAccess(ctx)
	if err != nil {
		return nil, err
	}
	if req.Since.IsZero() {
		return nil, fmt.Errorf("%w: since time is required", shared.ErrInvalidInput)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultBatchSize
	}
	if limit > s.cfg.MaxBatchSize {
		limit = s.cfg.MaxBatchSize
	}

	tombstones, err := s.tombstones.FindSince(ctx, access.TenantID, access.StoreID, req.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load tombstones: %w", err)
	}

	responses := make([]TombstoneResponse, len(tombstones))
	for i, t := range tombstones {
		responses[i] = ToTombstoneResponse(t)
	}
	return responses, nil
}

// Acknowledge advances the client's cursor after it has durably applied a
// batch. The cursor is monotonic: acknowledging a version below the stored
// cursor fails with ErrCursorRegression, and an equal version is a no-op.
func (s *PullService) Acknowledge(ctx context.Context, clientID string, version int64) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "acknowledge",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, clientID),
		telemetry.WithAttribute(telemetry.SpanAttrChangeVersion, version),
	)
	defer span.End()

	access, err := shared.MustAccess(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", shared.ErrInvalidInput)
	}
	if version < 0 {
		return fmt.Errorf("%w: version must not be negative", shared.ErrInvalidInput)
	}

	session, err := s.sessions.FindOrCreate(ctx, access.TenantID, access.StoreID, clientID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to resolve sync session: %w", err)
	}

	// Domain-level check first for a clean error, then the guarded UPDATE
	// enforces the same invariant against concurrent acknowledgements.
	if err := session.AdvanceTo(version); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if err := s.sessions.Advance(ctx, session.ID, version); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	logger.WithLogger(ctx, s.logger).Debug("Advanced sync cursor",
		zap.String("client_id", clientID),
		zap.Int64("version", version),
	)
	return nil
}
