package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	syncapp "github.com/pos/backend/internal/application/sync"
	"github.com/pos/backend/internal/infrastructure/config"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/migration"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/persistence/changestream"
	"github.com/pos/backend/internal/infrastructure/persistence/guard"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
	"github.com/pos/backend/internal/infrastructure/scheduler"
	"github.com/pos/backend/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting POS sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	ctx := context.Background()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  meterProvider.Meter("pos-sync"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Fail fast when the sync schema has not been migrated; the first
	// tracked write would otherwise fail mid-transaction.
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access database handle", zap.Error(err))
	}
	if err := migration.VerifySyncSchema(ctx, sqlDB); err != nil {
		log.Fatal("Sync schema verification failed", zap.Error(err))
	}

	// Tracked tables
	registry := persistence.NewTrackedRegistry()
	if err := registry.Register(&models.StoreModel{}, &models.ProductModel{}); err != nil {
		log.Fatal("Failed to register tracked models", zap.Error(err))
	}

	// The guard registers first so its checks run before any mutation; the
	// recorder then captures everything the guard let through. Not required:
	// the retention scheduler runs on this connection without an access
	// context, and the services enforce their own access checks.
	if err := guard.New(false).Register(db.DB); err != nil {
		log.Fatal("Failed to register tenant isolation guard", zap.Error(err))
	}

	allocator := persistence.NewSequenceAllocator(db.DB)
	recorder := changestream.New(registry, allocator,
		changestream.WithLogger(log),
		changestream.WithMetrics(syncMetrics),
	)
	if err := recorder.Register(db.DB); err != nil {
		log.Fatal("Failed to register change recorder", zap.Error(err))
	}
	log.Info("Change capture registered", zap.Strings("tracked_tables", registry.Tables()))

	// Retention
	changeLogRepo := persistence.NewGormChangeLogRepository(db.DB)
	tombstoneRepo := persistence.NewGormTombstoneRepository(db.DB)
	auditRepo := persistence.NewGormAuditLogRepository(db.DB)
	sessionRepo := persistence.NewGormSyncSessionRepository(db.DB)
	retentionService := syncapp.NewRetentionService(changeLogRepo, tombstoneRepo, auditRepo, sessionRepo, cfg.Sync,
		syncapp.WithRetentionLogger(log),
		syncapp.WithRetentionMetrics(syncMetrics),
	)

	// Retention scheduler
	retentionScheduler := scheduler.NewRetentionScheduler(scheduler.RetentionSchedulerConfig{
		Enabled:      true,
		Interval:     cfg.Sync.RetentionInterval,
		SweepTimeout: 10 * time.Minute,
	}, retentionService, log)
	if err := retentionScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start retention scheduler", zap.Error(err))
	}

	log.Info("POS sync backend running")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := retentionScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Retention scheduler shutdown error", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown error", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
