package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// PostgresAutomationRepository implements domain.AutomationRepository using
// PostgreSQL.
type PostgresAutomationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAutomationRepository creates a new PostgreSQL automation repository.
func NewPostgresAutomationRepository(pool *pgxpool.Pool) *PostgresAutomationRepository {
	return &PostgresAutomationRepository{pool: pool}
}

func (r *PostgresAutomationRepository) Create(ctx context.Context, automation *domain.Automation) error {
	actions, err := json.Marshal(automation.Actions)
	if err != nil {
		return err
	}
	var conditions []byte
	if automation.TriggerConditions != nil {
		if conditions, err = json.Marshal(automation.TriggerConditions); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO automations (` + automationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		automation.ID,
		automation.BuilderID,
		automation.Name,
		automation.Description,
		conditions,
		actions,
		automation.IsActive,
		automation.Priority,
		automation.TotalExecutions,
		automation.SuccessfulExecutions,
		automation.FailedExecutions,
		automation.LastExecutionAt,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	return err
}

// GetByID retrieves an automation, returning (nil, nil) when absent.
func (r *PostgresAutomationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = $1`
	automation, err := scanPgAutomation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return automation, err
}

// ListActiveByBuilder returns the builder's active automations, highest
// priority first.
func (r *PostgresAutomationRepository) ListActiveByBuilder(ctx context.Context, builderID uuid.UUID) ([]*domain.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE builder_id = $1 AND is_active = TRUE
		ORDER BY priority DESC, created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, builderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Automation
	for rows.Next() {
		automation, err := scanPgAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, automation)
	}
	return out, rows.Err()
}

// RecordExecution bumps the counters and last_execution_at in one statement.
func (r *PostgresAutomationRepository) RecordExecution(ctx context.Context, id uuid.UUID, success bool, at time.Time) error {
	query := `
		UPDATE automations
		SET total_executions = total_executions + 1,
			successful_executions = successful_executions + $1,
			failed_executions = failed_executions + $2,
			last_execution_at = $3,
			updated_at = $3
		WHERE id = $4
	`
	successDelta, failureDelta := 0, 1
	if success {
		successDelta, failureDelta = 1, 0
	}
	_, err := r.pool.Exec(ctx, query, successDelta, failureDelta, at, id)
	return err
}

func scanPgAutomation(row pgx.Row) (*domain.Automation, error) {
	var automation domain.Automation
	var conditions, actions []byte

	err := row.Scan(
		&automation.ID,
		&automation.BuilderID,
		&automation.Name,
		&automation.Description,
		&conditions,
		&actions,
		&automation.IsActive,
		&automation.Priority,
		&automation.TotalExecutions,
		&automation.SuccessfulExecutions,
		&automation.FailedExecutions,
		&automation.LastExecutionAt,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(conditions) > 0 {
		automation.TriggerConditions = &domain.Condition{}
		if err := json.Unmarshal(conditions, automation.TriggerConditions); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(actions, &automation.Actions); err != nil {
		return nil, err
	}
	return &automation, nil
}
