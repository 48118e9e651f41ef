package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema mirrors the SQLite DDL with native types: uuid keys, jsonb
// documents and timestamptz timestamps.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS automations (
		id UUID PRIMARY KEY,
		builder_id UUID NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		trigger_conditions JSONB,
		actions JSONB NOT NULL DEFAULT '[]',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		priority INT NOT NULL DEFAULT 5,
		total_executions BIGINT NOT NULL DEFAULT 0,
		successful_executions BIGINT NOT NULL DEFAULT 0,
		failed_executions BIGINT NOT NULL DEFAULT 0,
		last_execution_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automations_builder_active
		ON automations (builder_id, is_active)`,

	`CREATE TABLE IF NOT EXISTS trigger_events (
		id UUID PRIMARY KEY,
		trigger_type TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		event_source TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		event_data JSONB NOT NULL DEFAULT '{}',
		lead_id UUID,
		builder_id UUID NOT NULL,
		property_id UUID,
		matched_automations JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trigger_events_builder
		ON trigger_events (builder_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS automation_queue (
		id UUID PRIMARY KEY,
		automation_id UUID NOT NULL,
		trigger_event_id UUID NOT NULL,
		builder_id UUID NOT NULL,
		context JSONB NOT NULL DEFAULT '{}',
		priority INT NOT NULL DEFAULT 5,
		scheduled_for TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		max_attempts INT NOT NULL DEFAULT 3,
		last_error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		execution_id UUID,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_queue_claim
		ON automation_queue (status, scheduled_for, priority)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_queue_builder
		ON automation_queue (builder_id, status)`,

	`CREATE TABLE IF NOT EXISTS automation_executions (
		id UUID PRIMARY KEY,
		automation_id UUID NOT NULL,
		queue_item_id UUID NOT NULL,
		trigger_event_id UUID NOT NULL,
		lead_id UUID,
		status TEXT NOT NULL,
		actions_attempted INT NOT NULL DEFAULT 0,
		actions_succeeded INT NOT NULL DEFAULT 0,
		actions_failed INT NOT NULL DEFAULT 0,
		results JSONB NOT NULL DEFAULT '[]',
		error_message TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		duration_ms BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_executions_automation
		ON automation_executions (automation_id, started_at)`,
}

// MigratePostgres applies the schema to a PostgreSQL database.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
