package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a queue item. Transitions follow a
// strict machine: pending → processing → {completed | pending (retry) |
// failed}; pending → cancelled is an external transition. completed, failed
// and cancelled are terminal.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

// Queue defaults, matching the authoring surface's expectations.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 60 * time.Second
)

// QueueItem is one scheduled unit of work linking a matched automation to its
// originating trigger event. Items are never deleted; the row doubles as the
// audit trail of the attempt history.
type QueueItem struct {
	ID             uuid.UUID
	AutomationID   uuid.UUID
	TriggerEventID uuid.UUID
	BuilderID      uuid.UUID
	Context        map[string]any

	Priority     int
	ScheduledFor time.Time
	Status       QueueStatus

	Attempts    int
	MaxAttempts int
	LastError   string

	StartedAt   *time.Time
	CompletedAt *time.Time
	ExecutionID *uuid.UUID

	CreatedAt time.Time
}

// NewQueueItem creates a pending item scheduled for immediate execution.
func NewQueueItem(automationID, triggerEventID, builderID uuid.UUID, context map[string]any, priority int) *QueueItem {
	if priority == 0 {
		priority = DefaultPriority
	}
	now := time.Now()
	return &QueueItem{
		ID:             uuid.New(),
		AutomationID:   automationID,
		TriggerEventID: triggerEventID,
		BuilderID:      builderID,
		Context:        context,
		Priority:       priority,
		ScheduledFor:   now,
		Status:         QueueStatusPending,
		Attempts:       0,
		MaxAttempts:    DefaultMaxAttempts,
		CreatedAt:      now,
	}
}

// IsTerminal reports whether no further transition is permitted.
func (q *QueueItem) IsTerminal() bool {
	switch q.Status {
	case QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled:
		return true
	}
	return false
}

// BeginProcessing transitions pending → processing, consuming one attempt.
// The persistent store performs the same transition as a single guarded
// UPDATE; this method keeps the in-memory copy consistent with it.
func (q *QueueItem) BeginProcessing(at time.Time) error {
	if q.Status != QueueStatusPending {
		return ErrInvalidTransition
	}
	q.Status = QueueStatusProcessing
	q.Attempts++
	q.StartedAt = &at
	return nil
}

// Complete transitions processing → completed and links the execution record.
func (q *QueueItem) Complete(executionID uuid.UUID, at time.Time) error {
	if q.Status != QueueStatusProcessing {
		return ErrInvalidTransition
	}
	q.Status = QueueStatusCompleted
	q.CompletedAt = &at
	q.ExecutionID = &executionID
	return nil
}

// Fail records an error on a processing item. While attempts remain the item
// returns to pending with its schedule pushed out by backoff; otherwise it
// reaches the terminal failed state. Returns true when a retry was scheduled.
func (q *QueueItem) Fail(errMsg string, backoff time.Duration, at time.Time) (bool, error) {
	if q.Status != QueueStatusProcessing {
		return false, ErrInvalidTransition
	}
	q.LastError = errMsg
	if q.Attempts < q.MaxAttempts {
		q.Status = QueueStatusPending
		q.ScheduledFor = at.Add(backoff)
		return true, nil
	}
	q.Status = QueueStatusFailed
	q.CompletedAt = &at
	return false, nil
}

// ExhaustAttempts forces the attempt budget to its ceiling so the next Fail
// is terminal. Used for permanent failures such as a deleted automation,
// where retrying cannot succeed.
func (q *QueueItem) ExhaustAttempts() {
	q.Attempts = q.MaxAttempts
}

// Cancel is the external pending → cancelled transition. The processor never
// calls this; it merely refuses to resurrect cancelled items.
func (q *QueueItem) Cancel(at time.Time) error {
	if q.Status != QueueStatusPending {
		return ErrInvalidTransition
	}
	q.Status = QueueStatusCancelled
	q.CompletedAt = &at
	return nil
}
