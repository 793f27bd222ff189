// Package telemetry provides OpenTelemetry integration for tracing and metrics.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	syncdomain "github.com/pos/backend/internal/domain/sync"
)

// SyncMetrics provides metrics for the change-capture and sync pipeline.
// It tracks recorded mutations, pull and push traffic, conflict activity, and
// retention progress.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	mutationsRecorded *Counter
	pullBatchesTotal  *Counter
	pullRecordsTotal  *Counter
	pushBatchesTotal  *Counter
	pushChangesTotal  *Counter
	conflictsFlagged  *Counter
	conflictsResolved *Counter
	rowsPurgedTotal   *Counter

	// Histograms
	pullBatchSize *Histogram
	pushDuration  *Histogram
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	sm.mutationsRecorded, err = NewCounter(
		cfg.Meter,
		"pos_sync_mutations_recorded_total",
		"Total number of tracked-table mutations recorded in the change log",
		"{mutations}",
	)
	if err != nil {
		return nil, err
	}

	sm.pullBatchesTotal, err = NewCounter(
		cfg.Meter,
		"pos_sync_pull_batches_total",
		"Total number of pull batches served",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	sm.pullRecordsTotal, err = NewCounter(
		cfg.Meter,
		"pos_sync_pull_records_total",
		"Total number of change records served to clients",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.pushBatchesTotal, err = NewCounter(
		cfg.Meter,
		"pos_sync_push_batches_total",
		"Total number of push batches received, by outcome",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	sm.pushChangesTotal, err = NewCounter(
		cfg.Meter,
		"pos_sync_push_changes_total",
		"Total number of client changes applied, by outcome",
		"{changes}",
	)
	if err != nil {
		return nil, err
	}

	sm.conflictsFlagged, err = NewCounter(
		cfg.Meter,
		"pos_sync_conflicts_flagged_total",
		"Total number of sync conflicts flagged",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	sm.conflictsResolved, err = NewCounter(
		cfg.Meter,
		"pos_sync_conflicts_resolved_total",
		"Total number of sync conflicts resolved, by choice",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	sm.rowsPurgedTotal, err = NewCounter(
		cfg.Meter,
		"pos_sync_retention_rows_purged_total",
		"Total number of rows deleted by the retention job, by table",
		"{rows}",
	)
	if err != nil {
		return nil, err
	}

	sm.pullBatchSize, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "pos_sync_pull_batch_size",
		Description: "Distribution of pull batch sizes",
		Unit:        "{records}",
		Boundaries:  BatchSizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.pushDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "pos_sync_push_duration_seconds",
		Description: "Push batch processing duration",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// MutationRecorded counts one change record appended by the write hook.
// Called from the persistence layer without a context, so it records against
// the background context.
func (sm *SyncMetrics) MutationRecorded(table string, op syncdomain.Operation) {
	sm.mutationsRecorded.Inc(context.Background(),
		AttrTable.String(table),
		AttrOperation.String(string(op)),
	)
}

// RecordPullBatch records one pull batch served to a client
func (sm *SyncMetrics) RecordPullBatch(ctx context.Context, clientID string, records int) {
	sm.pullBatchesTotal.Inc(ctx, AttrClientID.String(clientID))
	sm.pullRecordsTotal.Add(ctx, int64(records), AttrClientID.String(clientID))
	sm.pullBatchSize.Record(ctx, float64(records), AttrClientID.String(clientID))
}

// PushOutcome labels the disposition of a push batch or individual change
type PushOutcome string

const (
	PushOutcomeApplied    PushOutcome = "applied"
	PushOutcomeDuplicate  PushOutcome = "duplicate"
	PushOutcomeConflicted PushOutcome = "conflicted"
	PushOutcomeFailed     PushOutcome = "failed"
)

// RecordPushBatch records one processed push batch
func (sm *SyncMetrics) RecordPushBatch(ctx context.Context, clientID string, outcome PushOutcome, elapsed time.Duration) {
	sm.pushBatchesTotal.Inc(ctx,
		AttrClientID.String(clientID),
		AttrOutcome.String(string(outcome)),
	)
	sm.pushDuration.RecordDuration(ctx, elapsed, AttrOutcome.String(string(outcome)))
}

// RecordPushChange records the disposition of a single client change
func (sm *SyncMetrics) RecordPushChange(ctx context.Context, table string, outcome PushOutcome) {
	sm.pushChangesTotal.Inc(ctx,
		AttrTable.String(table),
		AttrOutcome.String(string(outcome)),
	)
}

// RecordConflictFlagged counts one newly flagged conflict
func (sm *SyncMetrics) RecordConflictFlagged(ctx context.Context, table string) {
	sm.conflictsFlagged.Inc(ctx, AttrTable.String(table))
}

// RecordConflictResolved counts one conflict resolution
func (sm *SyncMetrics) RecordConflictResolved(ctx context.Context, choice syncdomain.ResolutionChoice) {
	sm.conflictsResolved.Inc(ctx, AttrOutcome.String(string(choice)))
}

// RecordRowsPurged counts rows deleted by a retention sweep
func (sm *SyncMetrics) RecordRowsPurged(ctx context.Context, table string, rows int64) {
	if rows <= 0 {
		return
	}
	sm.rowsPurgedTotal.Add(ctx, rows, AttrTable.String(table))
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
