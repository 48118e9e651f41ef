package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the state of one attempt to run a job's actions.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ActionResult is the outcome of dispatching a single action.
type ActionResult struct {
	Success    bool           `json:"success"`
	ActionType ActionType     `json:"action_type"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Execution links a queue item to its outcome: timing, per-action results and
// aggregate counts. Created when a job is claimed, finalized when its actions
// finish running.
type Execution struct {
	ID             uuid.UUID
	AutomationID   uuid.UUID
	QueueItemID    uuid.UUID
	TriggerEventID uuid.UUID
	LeadID         *uuid.UUID

	Status ExecutionStatus

	ActionsAttempted int
	ActionsSucceeded int
	ActionsFailed    int
	Results          []ActionResult
	ErrorMessage     string

	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMs  *int64
}

// NewExecution creates a running execution record for a claimed job.
func NewExecution(automationID, queueItemID, triggerEventID uuid.UUID, leadID *uuid.UUID) *Execution {
	return &Execution{
		ID:             uuid.New(),
		AutomationID:   automationID,
		QueueItemID:    queueItemID,
		TriggerEventID: triggerEventID,
		LeadID:         leadID,
		Status:         ExecutionStatusRunning,
		StartedAt:      time.Now(),
	}
}

// Finish finalizes the execution from the collected action results. The
// execution succeeds only when zero actions failed.
func (e *Execution) Finish(results []ActionResult, at time.Time) {
	e.Results = results
	e.ActionsAttempted = len(results)
	for _, r := range results {
		if r.Success {
			e.ActionsSucceeded++
		} else {
			e.ActionsFailed++
		}
	}
	if e.ActionsFailed == 0 {
		e.Status = ExecutionStatusSuccess
	} else {
		e.Status = ExecutionStatusFailed
		e.ErrorMessage = pluralizeFailures(e.ActionsFailed)
	}
	e.CompletedAt = &at
	ms := at.Sub(e.StartedAt).Milliseconds()
	e.DurationMs = &ms
}

// Succeeded reports whether the finished execution had no action failures.
func (e *Execution) Succeeded() bool {
	return e.Status == ExecutionStatusSuccess
}

func pluralizeFailures(n int) string {
	if n == 1 {
		return "1 action failed"
	}
	return fmt.Sprintf("%d actions failed", n)
}
