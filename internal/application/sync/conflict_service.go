package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/telemetry"
)

// ConflictService lists flagged conflicts and applies external resolution
// decisions. Resolving with the client or a merged payload writes the winning
// document through the tracked write path, so the resolution itself shows up
// in the change log and audit trail.
//
// It holds the concrete conflict repository rather than the domain interface:
// resolution must update the conflict row and write the winning payload in
// one transaction, which needs the repository's WithTx.
type ConflictService struct {
	db        *persistence.Database
	writer    *persistence.RowWriter
	conflicts *persistence.GormSyncConflictRepository
	audit     syncdomain.AuditLogRepository
	logger    *zap.Logger
	metrics   Metrics
}

// ConflictServiceOption configures a ConflictService
type ConflictServiceOption func(*ConflictService)

// WithConflictLogger sets the service logger
func WithConflictLogger(log *zap.Logger) ConflictServiceOption {
	return func(s *ConflictService) { s.logger = log }
}

// WithConflictMetrics sets the service metrics sink
func WithConflictMetrics(m Metrics) ConflictServiceOption {
	return func(s *ConflictService) { s.metrics = m }
}

// NewConflictService creates a new ConflictService
func NewConflictService(
	db *persistence.Database,
	writer *persistence.RowWriter,
	conflicts *persistence.GormSyncConflictRepository,
	audit syncdomain.AuditLogRepository,
	opts ...ConflictServiceOption,
) *ConflictService {
	s := &ConflictService{
		db:        db,
		writer:    writer,
		conflicts: conflicts,
		audit:     audit,
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListOpen returns the caller's unresolved conflicts, oldest first
func (s *ConflictService) ListOpen(ctx context.Context, page, pageSize int) ([]ConflictResponse, int64, error) {
	access, err := shared.MustAccess(ctx)
	if err != nil {
		return nil, 0, err
	}

	conflicts, total, err := s.conflicts.FindOpen(ctx, access.TenantID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list open conflicts: %w", err)
	}

	responses := make([]ConflictResponse, len(conflicts))
	for i, c := range conflicts {
		responses[i] = ToConflictResponse(c)
	}
	return responses, total, nil
}

// Get returns a single conflict by id
func (s *ConflictService) Get(ctx context.Context, conflictID uuid.UUID) (*ConflictResponse, error) {
	access, err := shared.MustAccess(ctx)
	if err != nil {
		return nil, err
	}

	conflict, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.TenantID != nil && !access.CanAccessTenant(*conflict.TenantID) {
		return nil, shared.ErrTenantIsolationViolation
	}

	resp := ToConflictResponse(conflict)
	return &resp, nil
}

// AuditTrail returns the conflicted row's audit ledger entries, newest
// first, so the resolver can see who changed what before deciding
func (s *ConflictService) AuditTrail(ctx context.Context, conflictID uuid.UUID, limit int) ([]AuditEntryResponse, error) {
	access, err := shared.MustAccess(ctx)
	if err != nil {
		return nil, err
	}

	conflict, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.TenantID != nil && !access.CanAccessTenant(*conflict.TenantID) {
		return nil, shared.ErrTenantIsolationViolation
	}

	if limit <= 0 {
		limit = 50
	}
	entries, err := s.audit.FindByObject(ctx, conflict.TableName, conflict.RowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}

	responses := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = ToAuditEntryResponse(e)
	}
	return responses, nil
}

// Resolve applies an external decision to a flagged conflict. accept_server
// leaves the row as the server last wrote it; accept_client and merged write
// the winning payload through the tracked path. A conflict is terminal once
// resolved: resolving it again fails with ErrConflictResolved.
func (s *ConflictService) Resolve(ctx context.Context, req ResolveConflictRequest) (*ConflictResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "resolve_conflict",
		telemetry.WithAttribute(telemetry.SpanAttrConflictID, req.ConflictID),
	)
	defer span.End()

	access, err := shared.MustAccess(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	conflict, err := s.conflicts.FindByID(ctx, req.ConflictID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if conflict.TenantID != nil && !access.CanAccessTenant(*conflict.TenantID) {
		return nil, shared.ErrTenantIsolationViolation
	}

	var applied syncdomain.Document
	switch req.Choice {
	case syncdomain.ResolutionAcceptClient:
		applied = conflict.ClientPayload
	case syncdomain.ResolutionAcceptServer:
		applied = conflict.ServerPayload
	case syncdomain.ResolutionMerged:
		if len(req.Merged) == 0 {
			return nil, fmt.Errorf("%w: merged payload is required", shared.ErrInvalidInput)
		}
		applied = req.Merged
	default:
		return nil, fmt.Errorf("%w: unknown resolution choice %q", shared.ErrInvalidInput, string(req.Choice))
	}

	if err := conflict.Resolve(req.Choice, applied); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.conflicts.WithTx(tx).Update(ctx, conflict); err != nil {
			return fmt.Errorf("failed to persist resolution: %w", err)
		}
		// Accepting the server's state needs no row write: the row already
		// holds it, and replaying it would mint a spurious change record.
		if req.Choice == syncdomain.ResolutionAcceptServer {
			return nil
		}
		return s.writer.WithTx(tx).Upsert(ctx, conflict.TableName, conflict.RowID, applied)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordConflictResolved(ctx, req.Choice)
	logger.WithLogger(ctx, s.logger).Info("Resolved sync conflict",
		zap.String("conflict_id", conflict.ID.String()),
		zap.String("table", conflict.TableName),
		zap.String("row_id", conflict.RowID.String()),
		zap.String("choice", string(req.Choice)),
	)

	resp := ToConflictResponse(conflict)
	return &resp, nil
}
