// Package persistence implements the repository interfaces on SQLite (pure
// Go driver, single-node deployments) and PostgreSQL (pgx, shared
// deployments). Timestamps are stored as RFC3339 UTC text on SQLite and
// native timestamptz on PostgreSQL.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// sqliteSchema is the DDL applied on startup. Statements are idempotent so a
// restart against an existing database is a no-op.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS automations (
		id TEXT PRIMARY KEY,
		builder_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		trigger_conditions TEXT,
		actions TEXT NOT NULL DEFAULT '[]',
		is_active INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 5,
		total_executions INTEGER NOT NULL DEFAULT 0,
		successful_executions INTEGER NOT NULL DEFAULT 0,
		failed_executions INTEGER NOT NULL DEFAULT 0,
		last_execution_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automations_builder_active
		ON automations (builder_id, is_active)`,

	`CREATE TABLE IF NOT EXISTS trigger_events (
		id TEXT PRIMARY KEY,
		trigger_type TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		event_source TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		event_data TEXT NOT NULL DEFAULT '{}',
		lead_id TEXT,
		builder_id TEXT NOT NULL,
		property_id TEXT,
		matched_automations TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trigger_events_builder
		ON trigger_events (builder_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS automation_queue (
		id TEXT PRIMARY KEY,
		automation_id TEXT NOT NULL,
		trigger_event_id TEXT NOT NULL,
		builder_id TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '{}',
		priority INTEGER NOT NULL DEFAULT 5,
		scheduled_for TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		last_error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		execution_id TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_queue_claim
		ON automation_queue (status, scheduled_for, priority)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_queue_builder
		ON automation_queue (builder_id, status)`,

	`CREATE TABLE IF NOT EXISTS automation_executions (
		id TEXT PRIMARY KEY,
		automation_id TEXT NOT NULL,
		queue_item_id TEXT NOT NULL,
		trigger_event_id TEXT NOT NULL,
		lead_id TEXT,
		status TEXT NOT NULL,
		actions_attempted INTEGER NOT NULL DEFAULT 0,
		actions_succeeded INTEGER NOT NULL DEFAULT 0,
		actions_failed INTEGER NOT NULL DEFAULT 0,
		results TEXT NOT NULL DEFAULT '[]',
		error_message TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT,
		duration_ms INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_executions_automation
		ON automation_executions (automation_id, started_at)`,
}

// MigrateSQLite applies the schema to a SQLite database.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
