// Command worker runs the outbox dispatcher that projects inventory
// movements into cost layers, next to a small operator HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	appevent "github.com/jwfreed/inventory-manager-sub010/internal/application/event"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/cache"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/config"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/event"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/logger"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/migration"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/storage"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/strategy/cost"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/telemetry"
	"github.com/jwfreed/inventory-manager-sub010/internal/interfaces/http/handler"
	"github.com/jwfreed/inventory-manager-sub010/internal/interfaces/http/router"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	runMigrations := flag.Bool("migrate", false, "Apply embedded migrations before starting")
	flag.Parse()

	if err := run(*runMigrations); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(runMigrations bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// The OTLP log bridge is teed next to the primary core once it exists.
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		return err
	}
	log := bootLog
	if logProvider.IsEnabled() {
		log, err = logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: cfg.Log.Output,
		}, logProvider.ZapCore(zap.InfoLevel))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting inventory worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("costing_method", cfg.Costing.Method),
	)

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	if profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Warn("Profiler stop failed", zap.Error(err))
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Meter provider shutdown failed", zap.Error(err))
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
		if err := logProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Logger provider shutdown failed", zap.Error(err))
		}
	}()

	db, err := persistence.NewDatabase(&cfg.Database, logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		return fmt.Errorf("failed to register database tracing: %w", err)
	}
	log.Info("Database connected successfully")

	if runMigrations {
		if err := migrate(db, log); err != nil {
			return err
		}
	}

	store := event.NewGormOutboxStore(db.DB, event.WithRetryPolicy(shared.RetryPolicy{
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BaseBackoff: cfg.Outbox.BaseBackoff,
		MaxBackoff:  cfg.Outbox.MaxBackoff,
		MaxJitter:   cfg.Outbox.MaxJitter,
	}))

	notifiers, err := cache.NewNotifierFactory(cfg.Redis, cache.WithLogger(log)).Create()
	if err != nil {
		return fmt.Errorf("failed to create cache notifiers: %w", err)
	}
	defer func() {
		if err := notifiers.Close(); err != nil {
			log.Warn("Error closing Redis client", zap.Error(err))
		}
	}()

	bus := event.NewInMemoryEventBus(log)
	publisher := event.FanoutPublisher{bus}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := event.NewKafkaMovementPublisher(event.NewKafkaWriter(cfg.Kafka), cfg.Kafka.Topic, log)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Warn("Error closing Kafka writer", zap.Error(err))
			}
		}()
		publisher = append(publisher, kafkaPublisher)
		log.Info("Publishing movements to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	relay := appcosting.NewSideEffectRelay(notifiers.Invalidator, publisher, appcosting.RelayConfig{
		QueueSize: cfg.Outbox.SideEffectQueue,
		Timeout:   cfg.Outbox.SideEffectTimeout,
	}, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := relay.Close(closeCtx); err != nil {
			log.Warn("Side effects still queued at shutdown", zap.Error(err))
		}
	}()

	calculator, err := cost.NewCalculatorForMethod(cfg.Costing.Method)
	if err != nil {
		return err
	}
	projector := appcosting.NewMovementProjector(calculator, log)
	movementHandler := event.NewMovementProjectionHandler(projector, func(tx *gorm.DB) appcosting.LedgerRepositories {
		return persistence.NewLedgerRepositories(tx, store)
	}, log)

	outboxMetrics, err := telemetry.NewOutboxMetrics(mp.Meter("inventory-worker/outbox"), telemetry.OutboxMetricsSources{
		Backlog:        store,
		DroppedEffects: relay.Dropped,
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox metrics: %w", err)
	}
	defer func() { _ = outboxMetrics.Close() }()

	opts := []event.DispatcherOption{
		event.WithEffectSink(relay),
		event.WithMetrics(outboxMetrics),
	}
	if notifiers.Lock != nil {
		opts = append(opts, event.WithLeaderLock(notifiers.Lock))
	}
	if cfg.Storage.Bucket != "" {
		archiver, err := storage.NewS3DeadLetterArchiver(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return fmt.Errorf("failed to create dead-letter archiver: %w", err)
		}
		if err := archiver.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to prepare dead-letter bucket: %w", err)
		}
		opts = append(opts, event.WithArchiver(archiver))
		log.Info("Archiving dead letters", zap.String("bucket", archiver.Bucket()))
	}

	dispatcher := event.NewOutboxDispatcher(store, movementHandler, event.OutboxDispatcherConfig{
		BatchSize:        cfg.Outbox.BatchSize,
		PollInterval:     cfg.Outbox.PollInterval,
		HandlerTimeout:   cfg.Outbox.HandlerTimeout,
		StaleAfter:       cfg.Outbox.StaleAfter,
		SweepInterval:    cfg.Outbox.SweepInterval,
		CleanupEnabled:   cfg.Outbox.CleanupEnabled,
		CleanupRetention: cfg.Outbox.CleanupRetention,
		CleanupInterval:  cfg.Outbox.CleanupInterval,
	}, log, opts...)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Outbox.DispatcherEnabled {
		if err := dispatcher.Start(gctx); err != nil {
			return fmt.Errorf("failed to start outbox dispatcher: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return dispatcher.Stop(stopCtx)
		})
	} else {
		log.Warn("Outbox dispatcher disabled by configuration")
	}

	if cfg.HTTP.Enabled {
		srv := newHTTPServer(cfg, log, db, store)
		g.Go(func() error {
			log.Info("Operator API listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("operator API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("Worker exited", zap.Uint64("dropped_side_effects", relay.Dropped()))
	return err
}

func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	m, err := migration.New(sqlDB, migration.Source{}, log)
	if err != nil {
		return err
	}
	// Closing the migrator would close the shared connection pool.
	return m.Up()
}

func newHTTPServer(cfg *config.Config, log *zap.Logger, db *persistence.Database, store *event.GormOutboxStore) *http.Server {
	engine := router.NewEngine(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Release:        cfg.App.Env == "production",
	}, log)

	router.NewRouter(engine).
		Register(handler.NewOutboxHandler(appevent.NewOutboxService(store, log))).
		RegisterRoot(handler.NewHealthHandler(db)).
		Setup()

	return &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
}
