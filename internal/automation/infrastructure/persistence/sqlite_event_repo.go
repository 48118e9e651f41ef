package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// SQLiteTriggerEventRepository implements domain.TriggerEventRepository using SQLite.
type SQLiteTriggerEventRepository struct {
	db *sql.DB
}

// NewSQLiteTriggerEventRepository creates a new SQLite trigger event repository.
func NewSQLiteTriggerEventRepository(db *sql.DB) *SQLiteTriggerEventRepository {
	return &SQLiteTriggerEventRepository{db: db}
}

const triggerEventColumns = `id, trigger_type, trigger_name, event_source, event_kind,
	event_data, lead_id, builder_id, property_id, matched_automations, created_at`

// Create appends a trigger event to the log.
func (r *SQLiteTriggerEventRepository) Create(ctx context.Context, event *domain.TriggerEvent) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return err
	}
	matched, err := json.Marshal(event.MatchedAutomations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trigger_events (` + triggerEventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID.String(),
		event.TriggerType,
		event.TriggerName,
		string(event.EventSource),
		string(event.EventKind),
		string(data),
		nullUUID(event.LeadID),
		event.BuilderID.String(),
		nullUUID(event.PropertyID),
		string(matched),
		event.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetByID retrieves a trigger event, returning (nil, nil) when absent.
func (r *SQLiteTriggerEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TriggerEvent, error) {
	query := `SELECT ` + triggerEventColumns + ` FROM trigger_events WHERE id = ?`
	event, err := scanTriggerEvent(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

// AppendMatch adds an automation id to the event's matched list.
func (r *SQLiteTriggerEventRepository) AppendMatch(ctx context.Context, eventID, automationID uuid.UUID) error {
	event, err := r.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event == nil {
		return domain.ErrEventNotFound
	}

	matched, err := json.Marshal(append(event.MatchedAutomations, automationID))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE trigger_events SET matched_automations = ? WHERE id = ?`,
		string(matched), eventID.String(),
	)
	return err
}

func scanTriggerEvent(row rowScanner) (*domain.TriggerEvent, error) {
	var event domain.TriggerEvent
	var idStr, builderIDStr, dataStr, matchedStr, createdAtStr string
	var sourceStr, kindStr string
	var leadIDStr, propertyIDStr sql.NullString

	err := row.Scan(
		&idStr,
		&event.TriggerType,
		&event.TriggerName,
		&sourceStr,
		&kindStr,
		&dataStr,
		&leadIDStr,
		&builderIDStr,
		&propertyIDStr,
		&matchedStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if event.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if event.BuilderID, err = uuid.Parse(builderIDStr); err != nil {
		return nil, err
	}
	event.EventSource = domain.EventSource(sourceStr)
	event.EventKind = domain.EventKind(kindStr)
	if err := json.Unmarshal([]byte(dataStr), &event.EventData); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(matchedStr), &event.MatchedAutomations); err != nil {
		return nil, err
	}
	if event.LeadID, err = parseNullUUID(leadIDStr); err != nil {
		return nil, err
	}
	if event.PropertyID, err = parseNullUUID(propertyIDStr); err != nil {
		return nil, err
	}
	if event.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, err
	}
	return &event, nil
}
