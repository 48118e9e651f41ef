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

// PostgresTriggerEventRepository implements domain.TriggerEventRepository
// using PostgreSQL.
type PostgresTriggerEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTriggerEventRepository creates a new PostgreSQL trigger event repository.
func NewPostgresTriggerEventRepository(pool *pgxpool.Pool) *PostgresTriggerEventRepository {
	return &PostgresTriggerEventRepository{pool: pool}
}

func (r *PostgresTriggerEventRepository) Create(ctx context.Context, event *domain.TriggerEvent) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return err
	}
	// jsonb || appends only onto an array, so an empty list must be stored
	// as [] rather than null.
	matched := []byte("[]")
	if len(event.MatchedAutomations) > 0 {
		if matched, err = json.Marshal(event.MatchedAutomations); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO trigger_events (` + triggerEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		event.ID,
		event.TriggerType,
		event.TriggerName,
		string(event.EventSource),
		string(event.EventKind),
		data,
		event.LeadID,
		event.BuilderID,
		event.PropertyID,
		matched,
		event.CreatedAt,
	)
	return err
}

// GetByID retrieves a trigger event, returning (nil, nil) when absent.
func (r *PostgresTriggerEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TriggerEvent, error) {
	query := `SELECT ` + triggerEventColumns + ` FROM trigger_events WHERE id = $1`
	event, err := scanPgTriggerEvent(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// AppendMatch adds an automation id to the event's matched list. Done in SQL
// so concurrent appends cannot lose each other.
func (r *PostgresTriggerEventRepository) AppendMatch(ctx context.Context, eventID, automationID uuid.UUID) error {
	query := `
		UPDATE trigger_events
		SET matched_automations = matched_automations || to_jsonb($1::text)
		WHERE id = $2
	`
	tag, err := r.pool.Exec(ctx, query, automationID.String(), eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func scanPgTriggerEvent(row pgx.Row) (*domain.TriggerEvent, error) {
	var event domain.TriggerEvent
	var sourceStr, kindStr string
	var data, matched []byte

	err := row.Scan(
		&event.ID,
		&event.TriggerType,
		&event.TriggerName,
		&sourceStr,
		&kindStr,
		&data,
		&event.LeadID,
		&event.BuilderID,
		&event.PropertyID,
		&matched,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.EventSource = domain.EventSource(sourceStr)
	event.EventKind = domain.EventKind(kindStr)
	if err := json.Unmarshal(data, &event.EventData); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(matched, &event.MatchedAutomations); err != nil {
		return nil, err
	}
	return &event, nil
}
