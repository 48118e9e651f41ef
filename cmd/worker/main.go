// The worker runs the automation engine: it consumes trigger events from
// RabbitMQ, evaluates automations and processes the durable job queue. A
// small admin HTTP server exposes health and queue statistics.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"github.com/leadrail/automation-engine/internal/automation/application"
	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/automation/engine"
	"github.com/leadrail/automation-engine/internal/automation/infrastructure/persistence"
	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
	"github.com/leadrail/automation-engine/pkg/config"
	"github.com/leadrail/automation-engine/pkg/observability"
)

type repositories struct {
	automations domain.AutomationRepository
	events      domain.TriggerEventRepository
	queue       domain.QueueRepository
	executions  domain.ExecutionRepository
}

func main() {
	logger := observability.NewLogger(observability.DefaultLogConfig())
	logger.Info("starting automation worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logCfg := observability.DefaultLogConfig()
	if cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	logCfg.Level = observability.LogLevel(cfg.LogLevel)
	if cfg.LogFormat != "" {
		logCfg.Format = observability.LogFormat(cfg.LogFormat)
	}
	logger = observability.NewLogger(logCfg)

	health := observability.NewHealthRegistry()

	// Storage
	var repos repositories
	var dbPing func(ctx context.Context) error
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		if err := persistence.MigratePostgres(ctx, pool); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		repos = repositories{
			automations: persistence.NewPostgresAutomationRepository(pool),
			events:      persistence.NewPostgresTriggerEventRepository(pool),
			queue:       persistence.NewPostgresQueueRepository(pool),
			executions:  persistence.NewPostgresExecutionRepository(pool),
		}
		dbPing = pool.Ping
	default:
		var db *sql.DB
		db, err = persistence.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repos = repositories{
			automations: persistence.NewSQLiteAutomationRepository(db),
			events:      persistence.NewSQLiteTriggerEventRepository(db),
			queue:       persistence.NewSQLiteQueueRepository(db),
			executions:  persistence.NewSQLiteExecutionRepository(db),
		}
		dbPing = db.PingContext
	}
	health.Register("database", observability.DatabaseHealthChecker(dbPing))
	logger.Info("connected to database", "driver", cfg.DatabaseDriver)

	// Condition engine
	registry := engine.NewRegistry(logger)
	evaluator := engine.NewEvaluator(registry, logger, engine.Options{
		CacheEnabled: cfg.CacheEnabled,
		CacheTTL:     cfg.CacheTTL,
		CacheEntries: cfg.CacheEntries,
	})

	// Action executor
	executor := application.NewExecutor(logger)
	webhook := application.NewWebhookHandler(application.WebhookConfig{
		Timeout:          cfg.WebhookTimeout,
		MaxRequests:      application.DefaultWebhookConfig().MaxRequests,
		OpenTimeout:      cfg.WebhookRecoveryTimeout,
		FailureThreshold: uint32(cfg.WebhookFailureThreshold),
	}, logger)
	application.RegisterDefaultHandlers(executor, application.HandlerDeps{Webhook: webhook}, logger)

	// Event publisher
	var publisher eventbus.Publisher
	var rabbitPublisher *eventbus.RabbitMQPublisher
	if cfg.RabbitMQURL != "" {
		rabbitPublisher, err = eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			if cfg.IsDevelopment() {
				logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
				publisher = eventbus.NewNoopPublisher(logger)
			} else {
				logger.Error("failed to connect to RabbitMQ", "error", err)
				os.Exit(1)
			}
		} else {
			publisher = rabbitPublisher
			defer rabbitPublisher.Close()
		}
	} else {
		logger.Info("RABBITMQ_URL not set, events stay local")
		publisher = eventbus.NewNoopPublisher(logger)
	}

	dispatcher := application.NewDispatcher(
		repos.automations, repos.events, repos.queue, evaluator, publisher, logger)

	// Inbound trigger events
	if rabbitPublisher != nil {
		consumerRegistry := eventbus.NewConsumerRegistry(logger)
		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:       cfg.RabbitMQURL,
			QueueName: cfg.RabbitMQQueue,
			Logger:    logger,
		}, consumerRegistry)
		if err != nil {
			logger.Error("failed to connect trigger consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		consumer.RegisterConsumer(application.NewTriggerConsumer(dispatcher, nil, logger))
		if err := consumer.Start(ctx); err != nil {
			logger.Error("failed to start trigger consumer", "error", err)
			os.Exit(1)
		}
		health.Register("rabbitmq", observability.RabbitMQHealthChecker(func(ctx context.Context) error {
			return consumer.Ping()
		}))
		logger.Info("trigger consumer started", "queue", cfg.RabbitMQQueue)
	}

	// Queue processor
	processor := application.NewProcessor(
		repos.queue, repos.automations, repos.events, repos.executions,
		executor, publisher,
		application.ProcessorConfig{
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
			Concurrency:  cfg.Concurrency,
			RetryBackoff: cfg.RetryBackoff,
		}, logger)

	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start queue processor", "error", err)
		os.Exit(1)
	}
	logger.Info("queue processor started",
		"poll_interval", cfg.PollInterval,
		"batch_size", cfg.BatchSize,
		"concurrency", cfg.Concurrency,
	)

	if cfg.AdminAddr != "" {
		startAdminServer(ctx, cfg.AdminAddr, processor, repos.queue, health, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	processor.Stop()
	logger.Info("worker stopped")
}

func startAdminServer(
	ctx context.Context,
	addr string,
	processor *application.Processor,
	queue domain.QueueRepository,
	health *observability.HealthRegistry,
	logger *slog.Logger,
) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		overall := health.GetOverallHealth(checkCtx)
		w.Header().Set("Content-Type", "application/json")
		if overall.Status == observability.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(overall)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !processor.IsRunning() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not_ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		queueStats, err := queue.Stats(r.Context(), uuid.Nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"processor": processor.GetStats(),
			"queue":     queueStats,
		})
	})

	mux.HandleFunc("/drain", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		processed, err := processor.ProcessOnce(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"processed": processed})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("admin server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown error", "error", err)
		}
	}()
}
