package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueStats is the per-tenant queue depth snapshot exposed by the
// administrative query surface.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// AutomationRepository provides access to stored automation definitions.
// The engine treats definitions as read-only apart from counter updates.
type AutomationRepository interface {
	Create(ctx context.Context, automation *Automation) error
	// GetByID returns (nil, nil) when no automation exists with the id.
	GetByID(ctx context.Context, id uuid.UUID) (*Automation, error)
	ListActiveByBuilder(ctx context.Context, builderID uuid.UUID) ([]*Automation, error)
	// RecordExecution bumps the running counters and last_execution_at.
	RecordExecution(ctx context.Context, id uuid.UUID, success bool, at time.Time) error
}

// TriggerEventRepository persists the append-only trigger event log.
type TriggerEventRepository interface {
	Create(ctx context.Context, event *TriggerEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*TriggerEvent, error)
	// AppendMatch adds an automation id to the event's matched list.
	AppendMatch(ctx context.Context, eventID, automationID uuid.UUID) error
}

// QueueRepository is the durable job queue. The pending → processing
// transition is the concurrency gate: MarkProcessing must be a single atomic
// update so that two racing processors cannot both win the same item.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *QueueItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error)
	// ClaimPending returns up to limit items with status=pending and
	// scheduled_for <= now, ordered by priority descending then
	// scheduled_for ascending.
	ClaimPending(ctx context.Context, limit int) ([]*QueueItem, error)
	// MarkProcessing attempts pending → processing, incrementing attempts and
	// stamping started_at. Returns false when the item was no longer pending,
	// in which case the caller must skip it.
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id, executionID uuid.UUID) error
	// MarkFailed records the error; while attempts remain it reschedules the
	// item backoff into the future and returns true, otherwise it applies the
	// terminal failed state and returns false.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, backoff time.Duration) (bool, error)
	// MarkFailedPermanent applies the terminal failed state regardless of the
	// remaining attempt budget.
	MarkFailedPermanent(ctx context.Context, id uuid.UUID, errMsg string) error
	// Cancel is the external pending → cancelled transition.
	Cancel(ctx context.Context, id uuid.UUID) error
	// Stats counts items by status; uuid.Nil scopes to all tenants.
	Stats(ctx context.Context, builderID uuid.UUID) (QueueStats, error)
}

// ExecutionRepository persists execution attempt records.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *Execution) error
	Update(ctx context.Context, execution *Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*Execution, error)
	ListByAutomation(ctx context.Context, automationID uuid.UUID, limit int) ([]*Execution, error)
}
