package sync

import (
	"context"
	"time"

	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/telemetry"
)

// Metrics receives sync service observations. A nil-safe no-op is used when
// none is provided; *telemetry.SyncMetrics satisfies it in production.
type Metrics interface {
	RecordPullBatch(ctx context.Context, clientID string, records int)
	RecordPushBatch(ctx context.Context, clientID string, outcome telemetry.PushOutcome, elapsed time.Duration)
	RecordPushChange(ctx context.Context, table string, outcome telemetry.PushOutcome)
	RecordConflictFlagged(ctx context.Context, table string)
	RecordConflictResolved(ctx context.Context, choice syncdomain.ResolutionChoice)
	RecordRowsPurged(ctx context.Context, table string, rows int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordPullBatch(context.Context, string, int) {}
func (noopMetrics) RecordPushBatch(context.Context, string, telemetry.PushOutcome, time.Duration) {
}
func (noopMetrics) RecordPushChange(context.Context, string, telemetry.PushOutcome)     {}
func (noopMetrics) RecordConflictFlagged(context.Context, string)                       {}
func (noopMetrics) RecordConflictResolved(context.Context, syncdomain.ResolutionChoice) {}
func (noopMetrics) RecordRowsPurged(context.Context, string, int64)                     {}

var _ Metrics = (*telemetry.SyncMetrics)(nil)
