package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/automation/engine"
)

// Service is the management facade: creating and toggling automations,
// validating and test-driving conditions, and administrative queue queries.
type Service struct {
	automations domain.AutomationRepository
	queue       domain.QueueRepository
	executions  domain.ExecutionRepository
	validator   *engine.Validator
	evaluator   *engine.Evaluator
	logger      *slog.Logger
}

// NewService creates the management service.
func NewService(
	automations domain.AutomationRepository,
	queue domain.QueueRepository,
	executions domain.ExecutionRepository,
	validator *engine.Validator,
	evaluator *engine.Evaluator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		automations: automations,
		queue:       queue,
		executions:  executions,
		validator:   validator,
		evaluator:   evaluator,
		logger:      logger,
	}
}

// CreateAutomationCommand carries the fields for a new automation.
type CreateAutomationCommand struct {
	BuilderID  uuid.UUID
	Name       string
	Conditions *domain.Condition
	Actions    []domain.Action
	Priority   int
}

// CreateAutomation validates the condition tree and stores the automation.
// Validation errors reject the command; warnings are logged and accepted.
func (s *Service) CreateAutomation(ctx context.Context, cmd CreateAutomationCommand) (*domain.Automation, error) {
	report := s.validator.Validate(cmd.Conditions)
	if !report.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCondition, report.Errors)
	}
	for _, warning := range report.Warnings {
		s.logger.Warn("condition validation warning", "name", cmd.Name, "warning", warning)
	}

	automation, err := domain.NewAutomation(cmd.BuilderID, cmd.Name, cmd.Conditions, cmd.Actions)
	if err != nil {
		return nil, err
	}
	if cmd.Priority != 0 {
		automation.SetPriority(cmd.Priority)
	}
	if err := s.automations.Create(ctx, automation); err != nil {
		return nil, fmt.Errorf("store automation: %w", err)
	}
	s.logger.Info("automation created", "automation_id", automation.ID, "builder_id", cmd.BuilderID, "name", cmd.Name)
	return automation, nil
}

// ValidateCondition runs schema validation without persisting anything.
func (s *Service) ValidateCondition(condition *domain.Condition) engine.Report {
	return s.validator.Validate(condition)
}

// TestCondition evaluates a condition against sample data with the debug
// trace enabled, for authoring tools and the CLI.
func (s *Service) TestCondition(condition *domain.Condition, data, context map[string]any) engine.Result {
	debug := engine.NewEvaluator(engine.NewRegistry(s.logger), s.logger, engine.Options{Debug: true})
	return debug.Evaluate(condition, data, context)
}

// QueueStats returns queue depth counters, scoped to a builder when the id
// is non-nil.
func (s *Service) QueueStats(ctx context.Context, builderID uuid.UUID) (domain.QueueStats, error) {
	return s.queue.Stats(ctx, builderID)
}

// CancelQueueItem cancels a pending item. Items in any other state are left
// untouched and the transition error is returned.
func (s *Service) CancelQueueItem(ctx context.Context, id uuid.UUID) error {
	if err := s.queue.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel queue item %s: %w", id, err)
	}
	s.logger.Info("queue item cancelled", "queue_item_id", id)
	return nil
}

// ListExecutions returns recent executions of one automation.
func (s *Service) ListExecutions(ctx context.Context, automationID uuid.UUID, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.executions.ListByAutomation(ctx, automationID, limit)
}
