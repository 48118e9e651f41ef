package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// SQLiteExecutionRepository implements domain.ExecutionRepository using SQLite.
type SQLiteExecutionRepository struct {
	db *sql.DB
}

// NewSQLiteExecutionRepository creates a new SQLite execution repository.
func NewSQLiteExecutionRepository(db *sql.DB) *SQLiteExecutionRepository {
	return &SQLiteExecutionRepository{db: db}
}

const executionColumns = `id, automation_id, queue_item_id, trigger_event_id, lead_id, status,
	actions_attempted, actions_succeeded, actions_failed, results, error_message,
	started_at, completed_at, duration_ms`

// Create stores an execution record.
func (r *SQLiteExecutionRepository) Create(ctx context.Context, execution *domain.Execution) error {
	results, err := json.Marshal(execution.Results)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var durationMs sql.NullInt64
	if execution.DurationMs != nil {
		durationMs = sql.NullInt64{Int64: *execution.DurationMs, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, query,
		execution.ID.String(),
		execution.AutomationID.String(),
		execution.QueueItemID.String(),
		execution.TriggerEventID.String(),
		nullUUID(execution.LeadID),
		string(execution.Status),
		execution.ActionsAttempted,
		execution.ActionsSucceeded,
		execution.ActionsFailed,
		string(results),
		execution.ErrorMessage,
		execution.StartedAt.UTC().Format(time.RFC3339),
		nullTime(execution.CompletedAt),
		durationMs,
	)
	return err
}

// Update rewrites the mutable fields of an execution record.
func (r *SQLiteExecutionRepository) Update(ctx context.Context, execution *domain.Execution) error {
	results, err := json.Marshal(execution.Results)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_executions SET
			status = ?, actions_attempted = ?, actions_succeeded = ?, actions_failed = ?,
			results = ?, error_message = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`
	var durationMs sql.NullInt64
	if execution.DurationMs != nil {
		durationMs = sql.NullInt64{Int64: *execution.DurationMs, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, query,
		string(execution.Status),
		execution.ActionsAttempted,
		execution.ActionsSucceeded,
		execution.ActionsFailed,
		string(results),
		execution.ErrorMessage,
		nullTime(execution.CompletedAt),
		durationMs,
		execution.ID.String(),
	)
	return err
}

// GetByID retrieves an execution, returning (nil, nil) when absent.
func (r *SQLiteExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_executions WHERE id = ?`
	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return execution, err
}

// ListByAutomation returns the automation's most recent executions.
func (r *SQLiteExecutionRepository) ListByAutomation(ctx context.Context, automationID uuid.UUID, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM automation_executions
		WHERE automation_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, automationID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, execution)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var execution domain.Execution
	var idStr, automationIDStr, queueItemIDStr, eventIDStr string
	var statusStr, resultsStr, startedAtStr string
	var leadIDStr, completedAtStr sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&idStr,
		&automationIDStr,
		&queueItemIDStr,
		&eventIDStr,
		&leadIDStr,
		&statusStr,
		&execution.ActionsAttempted,
		&execution.ActionsSucceeded,
		&execution.ActionsFailed,
		&resultsStr,
		&execution.ErrorMessage,
		&startedAtStr,
		&completedAtStr,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}

	if execution.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if execution.AutomationID, err = uuid.Parse(automationIDStr); err != nil {
		return nil, err
	}
	if execution.QueueItemID, err = uuid.Parse(queueItemIDStr); err != nil {
		return nil, err
	}
	if execution.TriggerEventID, err = uuid.Parse(eventIDStr); err != nil {
		return nil, err
	}
	if execution.LeadID, err = parseNullUUID(leadIDStr); err != nil {
		return nil, err
	}
	execution.Status = domain.ExecutionStatus(statusStr)
	if err := json.Unmarshal([]byte(resultsStr), &execution.Results); err != nil {
		return nil, err
	}
	if execution.StartedAt, err = time.Parse(time.RFC3339, startedAtStr); err != nil {
		return nil, err
	}
	if execution.CompletedAt, err = parseNullTime(completedAtStr); err != nil {
		return nil, err
	}
	if durationMs.Valid {
		execution.DurationMs = &durationMs.Int64
	}
	return &execution, nil
}
