package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// SQLiteQueueRepository implements domain.QueueRepository using SQLite. The
// pending → processing transition is a single guarded UPDATE so that two
// racing processors cannot both claim one item.
type SQLiteQueueRepository struct {
	db *sql.DB
}

// NewSQLiteQueueRepository creates a new SQLite queue repository.
func NewSQLiteQueueRepository(db *sql.DB) *SQLiteQueueRepository {
	return &SQLiteQueueRepository{db: db}
}

const queueColumns = `id, automation_id, trigger_event_id, builder_id, context, priority,
	scheduled_for, status, attempts, max_attempts, last_error,
	started_at, completed_at, execution_id, created_at`

// Enqueue stores a new pending queue item.
func (r *SQLiteQueueRepository) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	contextJSON, err := json.Marshal(item.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_queue (` + queueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID.String(),
		item.AutomationID.String(),
		item.TriggerEventID.String(),
		item.BuilderID.String(),
		string(contextJSON),
		item.Priority,
		item.ScheduledFor.UTC().Format(time.RFC3339),
		string(item.Status),
		item.Attempts,
		item.MaxAttempts,
		item.LastError,
		nullTime(item.StartedAt),
		nullTime(item.CompletedAt),
		nullUUID(item.ExecutionID),
		item.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetByID retrieves a queue item, returning (nil, nil) when absent.
func (r *SQLiteQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM automation_queue WHERE id = ?`
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// ClaimPending returns due pending items, highest priority first, oldest
// schedule first within a priority.
func (r *SQLiteQueueRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM automation_queue
		WHERE status = 'pending' AND scheduled_for <= ?
		ORDER BY priority DESC, scheduled_for ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, time.Now().UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkProcessing performs the atomic pending → processing transition. The
// status guard in the WHERE clause is what prevents a double claim.
func (r *SQLiteQueueRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE automation_queue
		SET status = 'processing', attempts = attempts + 1, started_at = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkCompleted transitions processing → completed.
func (r *SQLiteQueueRepository) MarkCompleted(ctx context.Context, id, executionID uuid.UUID) error {
	query := `
		UPDATE automation_queue
		SET status = 'completed', completed_at = ?, execution_id = ?
		WHERE id = ? AND status = 'processing'
	`
	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339), executionID.String(), id.String())
	if err != nil {
		return err
	}
	return requireOneRow(result)
}

// MarkFailed records the error. While attempts remain the item goes back to
// pending, pushed backoff into the future, and true is returned; otherwise
// the item reaches the terminal failed state.
func (r *SQLiteQueueRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, backoff time.Duration) (bool, error) {
	now := time.Now().UTC()
	retryQuery := `
		UPDATE automation_queue
		SET status = 'pending', last_error = ?, scheduled_for = ?
		WHERE id = ? AND status = 'processing' AND attempts < max_attempts
	`
	result, err := r.db.ExecContext(ctx, retryQuery,
		errMsg, now.Add(backoff).Format(time.RFC3339), id.String())
	if err != nil {
		return false, err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return false, err
	} else if affected == 1 {
		return true, nil
	}

	terminalQuery := `
		UPDATE automation_queue
		SET status = 'failed', last_error = ?, completed_at = ?
		WHERE id = ? AND status = 'processing'
	`
	result, err = r.db.ExecContext(ctx, terminalQuery, errMsg, now.Format(time.RFC3339), id.String())
	if err != nil {
		return false, err
	}
	return false, requireOneRow(result)
}

// MarkFailedPermanent applies the terminal failed state regardless of the
// remaining attempt budget.
func (r *SQLiteQueueRepository) MarkFailedPermanent(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE automation_queue
		SET status = 'failed', attempts = max_attempts, last_error = ?, completed_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
	`
	result, err := r.db.ExecContext(ctx, query,
		errMsg, time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return err
	}
	return requireOneRow(result)
}

// Cancel is the external pending → cancelled transition.
func (r *SQLiteQueueRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE automation_queue
		SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return err
	}
	return requireOneRow(result)
}

// Stats counts items by status, scoped to one builder unless builderID is
// uuid.Nil.
func (r *SQLiteQueueRepository) Stats(ctx context.Context, builderID uuid.UUID) (domain.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM automation_queue`
	args := []any{}
	if builderID != uuid.Nil {
		query += ` WHERE builder_id = ?`
		args = append(args, builderID.String())
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.QueueStats{}, err
	}
	defer rows.Close()

	var stats domain.QueueStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return domain.QueueStats{}, err
		}
		switch domain.QueueStatus(status) {
		case domain.QueueStatusPending:
			stats.Pending = count
		case domain.QueueStatusProcessing:
			stats.Processing = count
		case domain.QueueStatusCompleted:
			stats.Completed = count
		case domain.QueueStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func scanQueueItem(row rowScanner) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var idStr, automationIDStr, eventIDStr, builderIDStr string
	var contextStr, scheduledForStr, statusStr, createdAtStr string
	var startedAtStr, completedAtStr, executionIDStr sql.NullString

	err := row.Scan(
		&idStr,
		&automationIDStr,
		&eventIDStr,
		&builderIDStr,
		&contextStr,
		&item.Priority,
		&scheduledForStr,
		&statusStr,
		&item.Attempts,
		&item.MaxAttempts,
		&item.LastError,
		&startedAtStr,
		&completedAtStr,
		&executionIDStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if item.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if item.AutomationID, err = uuid.Parse(automationIDStr); err != nil {
		return nil, err
	}
	if item.TriggerEventID, err = uuid.Parse(eventIDStr); err != nil {
		return nil, err
	}
	if item.BuilderID, err = uuid.Parse(builderIDStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contextStr), &item.Context); err != nil {
		return nil, err
	}
	item.Status = domain.QueueStatus(statusStr)
	if item.ScheduledFor, err = time.Parse(time.RFC3339, scheduledForStr); err != nil {
		return nil, err
	}
	if item.StartedAt, err = parseNullTime(startedAtStr); err != nil {
		return nil, err
	}
	if item.CompletedAt, err = parseNullTime(completedAtStr); err != nil {
		return nil, err
	}
	if item.ExecutionID, err = parseNullUUID(executionIDStr); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, err
	}
	return &item, nil
}
