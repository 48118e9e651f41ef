// The automation CLI manages rules against the engine's database: creating
// and inspecting automations, validating and test-running condition trees,
// and administering the job queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/leadrail/automation-engine/internal/automation/application"
	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/automation/engine"
	"github.com/leadrail/automation-engine/internal/automation/infrastructure/persistence"
	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
	"github.com/leadrail/automation-engine/pkg/config"
	"github.com/leadrail/automation-engine/pkg/observability"
)

var rootCmd = &cobra.Command{
	Use:   "automation",
	Short: "Manage automation rules and the job queue",
	Long: `Create, validate and inspect automation rules, and administer the
durable job queue that runs their actions.

Examples:
  automation operators                       # List condition operators
  automation validate --conditions '...'     # Validate a condition tree
  automation test --conditions '...' --data '...'
  automation create "Welcome" --builder <id> --actions '...'
  automation stats --builder <id>`,
	SilenceUsage: true,
}

// app bundles everything a command may need. Commands that only work on
// condition trees never touch the database; openApp is called lazily by the
// commands that do.
type app struct {
	registry    *engine.Registry
	validator   *engine.Validator
	service     *application.Service
	dispatcher  *application.Dispatcher
	processor   *application.Processor
	automations domain.AutomationRepository
	logger      *slog.Logger
	close       func()
}

// newEngineOnly builds the pieces that work without a database.
func newEngineOnly() *app {
	logger := quietLogger()
	registry := engine.NewRegistry(logger)
	return &app{
		registry:  registry,
		validator: engine.NewValidator(registry),
		logger:    logger,
	}
}

func openApp(ctx context.Context) (*app, error) {
	logger := quietLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var (
		automations domain.AutomationRepository
		events      domain.TriggerEventRepository
		queue       domain.QueueRepository
		executions  domain.ExecutionRepository
		closeDB     func()
	)
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := persistence.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		automations = persistence.NewPostgresAutomationRepository(pool)
		events = persistence.NewPostgresTriggerEventRepository(pool)
		queue = persistence.NewPostgresQueueRepository(pool)
		executions = persistence.NewPostgresExecutionRepository(pool)
		closeDB = pool.Close
	default:
		db, err := persistence.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		automations = persistence.NewSQLiteAutomationRepository(db)
		events = persistence.NewSQLiteTriggerEventRepository(db)
		queue = persistence.NewSQLiteQueueRepository(db)
		executions = persistence.NewSQLiteExecutionRepository(db)
		closeDB = func() { db.Close() }
	}

	registry := engine.NewRegistry(logger)
	evaluator := engine.NewEvaluator(registry, logger, engine.Options{
		CacheEnabled: cfg.CacheEnabled,
		CacheTTL:     cfg.CacheTTL,
		CacheEntries: cfg.CacheEntries,
	})
	validator := engine.NewValidator(registry)

	executor := application.NewExecutor(logger)
	application.RegisterDefaultHandlers(executor, application.HandlerDeps{}, logger)
	publisher := eventbus.NewNoopPublisher(logger)
	processor := application.NewProcessor(queue, automations, events, executions, executor, publisher,
		application.ProcessorConfig{
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
			Concurrency:  cfg.Concurrency,
			RetryBackoff: cfg.RetryBackoff,
		}, logger)

	return &app{
		registry:  registry,
		validator: validator,
		service:   application.NewService(automations, queue, executions, validator, evaluator, logger),
		dispatcher: application.NewDispatcher(
			automations, events, queue, evaluator, publisher, logger),
		processor:   processor,
		automations: automations,
		logger:      logger,
		close:       closeDB,
	}, nil
}

// quietLogger sends warnings and errors to stderr without drowning command
// output.
func quietLogger() *slog.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  observability.LogLevelWarn,
		Format: observability.LogFormatText,
		Output: os.Stderr,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
