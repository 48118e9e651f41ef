package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// SQLiteAutomationRepository implements domain.AutomationRepository using SQLite.
type SQLiteAutomationRepository struct {
	db *sql.DB
}

// NewSQLiteAutomationRepository creates a new SQLite automation repository.
func NewSQLiteAutomationRepository(db *sql.DB) *SQLiteAutomationRepository {
	return &SQLiteAutomationRepository{db: db}
}

const automationColumns = `id, builder_id, name, description, trigger_conditions, actions,
	is_active, priority, total_executions, successful_executions, failed_executions,
	last_execution_at, created_at, updated_at`

// Create stores a new automation.
func (r *SQLiteAutomationRepository) Create(ctx context.Context, automation *domain.Automation) error {
	actions, err := json.Marshal(automation.Actions)
	if err != nil {
		return err
	}
	var conditions sql.NullString
	if automation.TriggerConditions != nil {
		raw, err := json.Marshal(automation.TriggerConditions)
		if err != nil {
			return err
		}
		conditions = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO automations (` + automationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		automation.ID.String(),
		automation.BuilderID.String(),
		automation.Name,
		automation.Description,
		conditions,
		string(actions),
		boolToInt(automation.IsActive),
		automation.Priority,
		automation.TotalExecutions,
		automation.SuccessfulExecutions,
		automation.FailedExecutions,
		nullTime(automation.LastExecutionAt),
		automation.CreatedAt.UTC().Format(time.RFC3339),
		automation.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetByID retrieves an automation, returning (nil, nil) when absent.
func (r *SQLiteAutomationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = ?`
	automation, err := scanAutomation(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return automation, err
}

// ListActiveByBuilder returns the builder's active automations, highest
// priority first.
func (r *SQLiteAutomationRepository) ListActiveByBuilder(ctx context.Context, builderID uuid.UUID) ([]*domain.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE builder_id = ? AND is_active = 1
		ORDER BY priority DESC, created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, builderID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Automation
	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, automation)
	}
	return out, rows.Err()
}

// RecordExecution bumps the counters and last_execution_at in one statement.
func (r *SQLiteAutomationRepository) RecordExecution(ctx context.Context, id uuid.UUID, success bool, at time.Time) error {
	query := `
		UPDATE automations SET
			total_executions = total_executions + 1,
			successful_executions = successful_executions + ?,
			failed_executions = failed_executions + ?,
			last_execution_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	succeeded, failed := 1, 0
	if !success {
		succeeded, failed = 0, 1
	}
	ts := at.UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, query, succeeded, failed, ts, ts, id.String())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row rowScanner) (*domain.Automation, error) {
	var automation domain.Automation
	var idStr, builderIDStr string
	var conditionsStr, lastExecutionStr sql.NullString
	var actionsStr, createdAtStr, updatedAtStr string
	var isActive int

	err := row.Scan(
		&idStr,
		&builderIDStr,
		&automation.Name,
		&automation.Description,
		&conditionsStr,
		&actionsStr,
		&isActive,
		&automation.Priority,
		&automation.TotalExecutions,
		&automation.SuccessfulExecutions,
		&automation.FailedExecutions,
		&lastExecutionStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if automation.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if automation.BuilderID, err = uuid.Parse(builderIDStr); err != nil {
		return nil, err
	}
	if conditionsStr.Valid {
		automation.TriggerConditions = &domain.Condition{}
		if err := json.Unmarshal([]byte(conditionsStr.String), automation.TriggerConditions); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(actionsStr), &automation.Actions); err != nil {
		return nil, err
	}
	automation.IsActive = isActive != 0
	if automation.LastExecutionAt, err = parseNullTime(lastExecutionStr); err != nil {
		return nil, err
	}
	if automation.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, err
	}
	if automation.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, err
	}
	return &automation, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
