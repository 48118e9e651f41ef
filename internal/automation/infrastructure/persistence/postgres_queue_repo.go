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

// PostgresQueueRepository implements domain.QueueRepository using PostgreSQL.
// The state machine relies on the same guarded UPDATEs as the SQLite
// implementation; with multiple worker processes sharing one database the
// status guard is what keeps each item claimed exactly once.
type PostgresQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresQueueRepository creates a new PostgreSQL queue repository.
func NewPostgresQueueRepository(pool *pgxpool.Pool) *PostgresQueueRepository {
	return &PostgresQueueRepository{pool: pool}
}

// Enqueue stores a new pending queue item.
func (r *PostgresQueueRepository) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	contextJSON, err := json.Marshal(item.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_queue (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		item.ID,
		item.AutomationID,
		item.TriggerEventID,
		item.BuilderID,
		contextJSON,
		item.Priority,
		item.ScheduledFor,
		string(item.Status),
		item.Attempts,
		item.MaxAttempts,
		item.LastError,
		item.StartedAt,
		item.CompletedAt,
		item.ExecutionID,
		item.CreatedAt,
	)
	return err
}

// GetByID retrieves a queue item, returning (nil, nil) when absent.
func (r *PostgresQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM automation_queue WHERE id = $1`
	item, err := scanPgQueueItem(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// ClaimPending returns due pending items, highest priority first, oldest
// schedule first within a priority.
func (r *PostgresQueueRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM automation_queue
		WHERE status = 'pending' AND scheduled_for <= NOW()
		ORDER BY priority DESC, scheduled_for ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.QueueItem
	for rows.Next() {
		item, err := scanPgQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkProcessing performs the atomic pending → processing transition. The
// status guard in the WHERE clause is what prevents a double claim.
func (r *PostgresQueueRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE automation_queue
		SET status = 'processing', attempts = attempts + 1, started_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted transitions processing → completed.
func (r *PostgresQueueRepository) MarkCompleted(ctx context.Context, id, executionID uuid.UUID) error {
	query := `
		UPDATE automation_queue
		SET status = 'completed', completed_at = NOW(), execution_id = $1
		WHERE id = $2 AND status = 'processing'
	`
	tag, err := r.pool.Exec(ctx, query, executionID, id)
	if err != nil {
		return err
	}
	return requireOneAffected(tag.RowsAffected())
}

// MarkFailed records the error. While attempts remain the item goes back to
// pending, pushed backoff into the future, and true is returned; otherwise
// the item reaches the terminal failed state.
func (r *PostgresQueueRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, backoff time.Duration) (bool, error) {
	retryQuery := `
		UPDATE automation_queue
		SET status = 'pending', last_error = $1, scheduled_for = $2
		WHERE id = $3 AND status = 'processing' AND attempts < max_attempts
	`
	tag, err := r.pool.Exec(ctx, retryQuery, errMsg, time.Now().UTC().Add(backoff), id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	terminalQuery := `
		UPDATE automation_queue
		SET status = 'failed', last_error = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`
	tag, err = r.pool.Exec(ctx, terminalQuery, errMsg, id)
	if err != nil {
		return false, err
	}
	return false, requireOneAffected(tag.RowsAffected())
}

// MarkFailedPermanent applies the terminal failed state regardless of the
// remaining attempt budget.
func (r *PostgresQueueRepository) MarkFailedPermanent(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE automation_queue
		SET status = 'failed', attempts = max_attempts, last_error = $1, completed_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'processing')
	`
	tag, err := r.pool.Exec(ctx, query, errMsg, id)
	if err != nil {
		return err
	}
	return requireOneAffected(tag.RowsAffected())
}

// Cancel is the external pending → cancelled transition.
func (r *PostgresQueueRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE automation_queue
		SET status = 'cancelled', completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	return requireOneAffected(tag.RowsAffected())
}

// Stats counts items by status, scoped to one builder unless builderID is
// uuid.Nil.
func (r *PostgresQueueRepository) Stats(ctx context.Context, builderID uuid.UUID) (domain.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM automation_queue`
	args := []any{}
	if builderID != uuid.Nil {
		query += ` WHERE builder_id = $1`
		args = append(args, builderID)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
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

func requireOneAffected(affected int64) error {
	if affected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func scanPgQueueItem(row pgx.Row) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var contextJSON []byte
	var statusStr string

	err := row.Scan(
		&item.ID,
		&item.AutomationID,
		&item.TriggerEventID,
		&item.BuilderID,
		&contextJSON,
		&item.Priority,
		&item.ScheduledFor,
		&statusStr,
		&item.Attempts,
		&item.MaxAttempts,
		&item.LastError,
		&item.StartedAt,
		&item.CompletedAt,
		&item.ExecutionID,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = domain.QueueStatus(statusStr)
	if err := json.Unmarshal(contextJSON, &item.Context); err != nil {
		return nil, err
	}
	return &item, nil
}
