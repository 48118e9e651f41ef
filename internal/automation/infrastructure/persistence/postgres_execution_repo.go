package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// PostgresExecutionRepository implements domain.ExecutionRepository using
// PostgreSQL.
type PostgresExecutionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutionRepository creates a new PostgreSQL execution repository.
func NewPostgresExecutionRepository(pool *pgxpool.Pool) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{pool: pool}
}

func (r *PostgresExecutionRepository) Create(ctx context.Context, execution *domain.Execution) error {
	results, err := json.Marshal(execution.Results)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		execution.ID,
		execution.AutomationID,
		execution.QueueItemID,
		execution.TriggerEventID,
		execution.LeadID,
		string(execution.Status),
		execution.ActionsAttempted,
		execution.ActionsSucceeded,
		execution.ActionsFailed,
		results,
		execution.ErrorMessage,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationMs,
	)
	return err
}

// Update writes the finished state of an execution.
func (r *PostgresExecutionRepository) Update(ctx context.Context, execution *domain.Execution) error {
	results, err := json.Marshal(execution.Results)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_executions
		SET status = $1, actions_attempted = $2, actions_succeeded = $3,
			actions_failed = $4, results = $5, error_message = $6,
			completed_at = $7, duration_ms = $8
		WHERE id = $9
	`
	_, err = r.pool.Exec(ctx, query,
		string(execution.Status),
		execution.ActionsAttempted,
		execution.ActionsSucceeded,
		execution.ActionsFailed,
		results,
		execution.ErrorMessage,
		execution.CompletedAt,
		execution.DurationMs,
		execution.ID,
	)
	return err
}

// GetByID retrieves an execution, returning (nil, nil) when absent.
func (r *PostgresExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_executions WHERE id = $1`
	execution, err := scanPgExecution(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return execution, err
}

// ListByAutomation returns the automation's executions, most recent first.
func (r *PostgresExecutionRepository) ListByAutomation(ctx context.Context, automationID uuid.UUID, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM automation_executions
		WHERE automation_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, automationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		execution, err := scanPgExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, execution)
	}
	return out, rows.Err()
}

func scanPgExecution(row pgx.Row) (*domain.Execution, error) {
	var execution domain.Execution
	var statusStr string
	var results []byte

	err := row.Scan(
		&execution.ID,
		&execution.AutomationID,
		&execution.QueueItemID,
		&execution.TriggerEventID,
		&execution.LeadID,
		&statusStr,
		&execution.ActionsAttempted,
		&execution.ActionsSucceeded,
		&execution.ActionsFailed,
		&results,
		&execution.ErrorMessage,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = domain.ExecutionStatus(statusStr)
	if err := json.Unmarshal(results, &execution.Results); err != nil {
		return nil, err
	}
	return &execution, nil
}
