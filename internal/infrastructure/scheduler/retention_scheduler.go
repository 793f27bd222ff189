package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetentionRunner executes one retention sweep. It is implemented by the
// application layer so the scheduler stays free of persistence concerns.
type RetentionRunner interface {
	RunRetention(ctx context.Context) error
}

// RetentionSchedulerConfig holds configuration for the retention scheduler
type RetentionSchedulerConfig struct {
	Enabled bool
	// Interval is how often a retention sweep runs
	Interval time.Duration
	// SweepTimeout bounds a single sweep
	SweepTimeout time.Duration
}

// DefaultRetentionSchedulerConfig returns default retention scheduler configuration
func DefaultRetentionSchedulerConfig() RetentionSchedulerConfig {
	return RetentionSchedulerConfig{
		Enabled:      true,
		Interval:     time.Hour,
		SweepTimeout: 10 * time.Minute,
	}
}

// RetentionScheduler periodically prunes aged change log records, tombstones,
// and audit entries. Sweeps run in bounded batches so a large backlog never
// holds long locks; whatever a sweep does not finish, the next one continues.
type RetentionScheduler struct {
	config RetentionSchedulerConfig
	runner RetentionRunner
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRetentionScheduler creates a new retention scheduler
func NewRetentionScheduler(config RetentionSchedulerConfig, runner RetentionRunner, logger *zap.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		config: config,
		runner: runner,
		logger: logger,
	}
}

// Start starts the retention scheduler
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Retention scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("sweep_timeout", s.config.SweepTimeout),
	)

	return nil
}

// Stop gracefully stops the retention scheduler
func (s *RetentionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Retention scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Retention scheduler stop timed out")
		return ctx.Err()
	}
}

// runLoop runs retention sweeps on the configured interval
func (s *RetentionScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one retention pass with a bounded timeout
func (s *RetentionScheduler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	start := time.Now()
	if err := s.runner.RunRetention(sweepCtx); err != nil {
		s.logger.Error("Retention sweep failed", zap.Error(err))
		return
	}

	s.logger.Debug("Retention sweep completed",
		zap.Duration("elapsed", time.Since(start)),
	)
}

// TriggerNow runs a sweep immediately, outside the regular interval.
// Useful for operational tooling and tests.
func (s *RetentionScheduler) TriggerNow(ctx context.Context) error {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()
	return s.runner.RunRetention(sweepCtx)
}
