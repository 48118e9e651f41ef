// Package domain contains the automation engine's domain model: automations,
// condition trees, trigger events, queue items and execution records.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for the automation domain.
var (
	ErrAutomationNotFound = errors.New("automation not found")
	ErrEventNotFound      = errors.New("trigger event not found")
	ErrQueueItemNotFound  = errors.New("queue item not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrInvalidTransition  = errors.New("invalid queue item transition")
	ErrInvalidCondition   = errors.New("invalid condition")
)

// ActionType identifies an action handler. The set is closed: an automation
// referencing any other type produces a failed ActionResult, never a panic.
type ActionType string

const (
	ActionTypeEmail        ActionType = "email"
	ActionTypeSMS          ActionType = "sms"
	ActionTypeWebhook      ActionType = "webhook"
	ActionTypeCRM          ActionType = "crm"
	ActionTypeTag          ActionType = "tag"
	ActionTypeFieldUpdate  ActionType = "field_update"
	ActionTypeAssign       ActionType = "assign"
	ActionTypeDelay        ActionType = "delay"
	ActionTypeNotification ActionType = "notification"
)

// Action is one typed step in an automation's ordered action list.
// Config values are raw authored values; {{variable}} placeholders are
// substituted at execution time.
type Action struct {
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config"`
}

// StopOnFailure reports whether a failure of this action should halt the
// remaining actions in the list.
func (a Action) StopOnFailure() bool {
	v, _ := a.Config["stop_on_failure"].(bool)
	return v
}

// Automation is a stored rule: a condition tree, an ordered action list and
// activation/priority metadata. The engine reads automations and increments
// their execution counters; authoring is an external surface.
type Automation struct {
	ID          uuid.UUID
	BuilderID   uuid.UUID
	Name        string
	Description string

	TriggerConditions *Condition
	Actions           []Action

	IsActive bool
	Priority int

	TotalExecutions      int64
	SuccessfulExecutions int64
	FailedExecutions     int64
	LastExecutionAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPriority is assigned when an automation does not set one.
const DefaultPriority = 5

// NewAutomation creates an active automation with default priority.
func NewAutomation(builderID uuid.UUID, name string, conditions *Condition, actions []Action) (*Automation, error) {
	if name == "" {
		return nil, errors.New("automation name is required")
	}
	now := time.Now()
	return &Automation{
		ID:                uuid.New(),
		BuilderID:         builderID,
		Name:              name,
		TriggerConditions: conditions,
		Actions:           actions,
		IsActive:          true,
		Priority:          DefaultPriority,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// SetPriority sets the scheduling priority (higher is more urgent).
func (a *Automation) SetPriority(priority int) {
	a.Priority = priority
	a.UpdatedAt = time.Now()
}

// Deactivate soft-disables the automation.
func (a *Automation) Deactivate() {
	a.IsActive = false
	a.UpdatedAt = time.Now()
}

// RecordExecution bumps the running counters after a job finishes.
func (a *Automation) RecordExecution(success bool, at time.Time) {
	a.TotalExecutions++
	if success {
		a.SuccessfulExecutions++
	} else {
		a.FailedExecutions++
	}
	a.LastExecutionAt = &at
}
