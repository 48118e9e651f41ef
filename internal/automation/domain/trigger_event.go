package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventSource tells where a trigger event originated.
type EventSource string

const (
	EventSourceAPI     EventSource = "api"
	EventSourceSystem  EventSource = "system"
	EventSourceWebhook EventSource = "webhook"
	EventSourceManual  EventSource = "manual"
)

// EventKind is the CRUD-style kind of the occurrence.
type EventKind string

const (
	EventKindCreate EventKind = "create"
	EventKindUpdate EventKind = "update"
	EventKindDelete EventKind = "delete"
)

// TriggerEvent is one durable record of an external occurrence considered for
// automation matching. It is append-only: the matched automation list grows
// as evaluation proceeds, nothing else is ever updated.
type TriggerEvent struct {
	ID          uuid.UUID
	TriggerType string
	TriggerName string
	EventSource EventSource
	EventKind   EventKind
	EventData   map[string]any

	LeadID     *uuid.UUID
	BuilderID  uuid.UUID
	PropertyID *uuid.UUID

	MatchedAutomations []uuid.UUID

	CreatedAt time.Time
}

// NewTriggerEvent creates a trigger event record for an incoming occurrence.
func NewTriggerEvent(triggerType, triggerName string, source EventSource, kind EventKind, data map[string]any, builderID uuid.UUID) *TriggerEvent {
	return &TriggerEvent{
		ID:          uuid.New(),
		TriggerType: triggerType,
		TriggerName: triggerName,
		EventSource: source,
		EventKind:   kind,
		EventData:   data,
		BuilderID:   builderID,
		CreatedAt:   time.Now(),
	}
}

// Context returns the ambient lookup map passed to the condition evaluator
// alongside the event payload, so conditions can reference trigger metadata
// with the same field syntax as payload fields.
func (e *TriggerEvent) Context() map[string]any {
	ctx := map[string]any{
		"trigger_type": e.TriggerType,
		"event_type":   string(e.EventKind),
	}
	if e.LeadID != nil {
		ctx["lead_id"] = e.LeadID.String()
	}
	if e.PropertyID != nil {
		ctx["property_id"] = e.PropertyID.String()
	}
	return ctx
}
