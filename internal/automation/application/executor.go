package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// ActionHandler executes one resolved action. The returned map is attached to
// the action result for auditing; errors fail the single action, the executor
// decides whether the rest of the sequence still runs.
type ActionHandler interface {
	Handle(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error)
}

// ActionHandlerFunc adapts a function to the ActionHandler interface.
type ActionHandlerFunc func(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error)

// Handle implements ActionHandler.
func (f ActionHandlerFunc) Handle(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error) {
	return f(ctx, action, vars)
}

// Executor runs an automation's action sequence in order, substituting
// {{variable}} placeholders in each action config before dispatch.
type Executor struct {
	handlers map[domain.ActionType]ActionHandler
	logger   *slog.Logger
}

// NewExecutor creates an executor with no handlers registered. Actions whose
// type has no handler fail without aborting the sequence (unless the action
// asks to stop on failure).
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		handlers: make(map[domain.ActionType]ActionHandler),
		logger:   logger,
	}
}

// Register installs the handler for an action type, replacing any previous one.
func (e *Executor) Register(actionType domain.ActionType, handler ActionHandler) {
	e.handlers[actionType] = handler
}

// Execute runs every action of the automation against the trigger event and
// returns a finished execution record. Individual action failures are
// recorded, not propagated; the execution as a whole fails when any action
// failed.
func (e *Executor) Execute(ctx context.Context, automation *domain.Automation, event *domain.TriggerEvent, item *domain.QueueItem) *domain.Execution {
	execution := domain.NewExecution(automation.ID, item.ID, event.ID, event.LeadID)
	e.Run(ctx, automation, event, item, execution)
	return execution
}

// Run executes the action sequence against an already-created running
// execution and finalizes it in place. The caller owns persisting the record
// before and after, so an attempt is on record while its actions are still
// in flight.
func (e *Executor) Run(ctx context.Context, automation *domain.Automation, event *domain.TriggerEvent, item *domain.QueueItem, execution *domain.Execution) {
	vars := buildVariables(event, item)

	results := make([]domain.ActionResult, 0, len(automation.Actions))
	for i, action := range automation.Actions {
		resolved := action
		resolved.Config = substituteConfig(action.Config, vars)

		result := e.runAction(ctx, resolved, vars)
		results = append(results, result)

		if !result.Success && action.StopOnFailure() {
			e.logger.Warn("action sequence halted",
				"automation_id", automation.ID,
				"action_index", i,
				"action_type", action.Type,
				"error", result.Error,
			)
			break
		}
	}

	execution.Finish(results, time.Now().UTC())
}

func (e *Executor) runAction(ctx context.Context, action domain.Action, vars map[string]any) domain.ActionResult {
	handler, ok := e.handlers[action.Type]
	if !ok {
		return domain.ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      fmt.Sprintf("no handler registered for action type %q", action.Type),
		}
	}

	data, err := handler.Handle(ctx, action, vars)
	if err != nil {
		return domain.ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      err.Error(),
			Data:       data,
		}
	}
	return domain.ActionResult{
		ActionType: action.Type,
		Success:    true,
		Data:       data,
	}
}

// buildVariables assembles the substitution scope. Later sources win: job
// context variables first, then top-level event payload fields, then the
// identifiers carried by the event itself.
func buildVariables(event *domain.TriggerEvent, item *domain.QueueItem) map[string]any {
	vars := make(map[string]any)
	if item != nil {
		for key, value := range item.Context {
			vars[key] = value
		}
	}
	for key, value := range event.EventData {
		vars[key] = value
	}
	vars["trigger_type"] = event.TriggerType
	vars["builder_id"] = event.BuilderID.String()
	if event.LeadID != nil {
		vars["lead_id"] = event.LeadID.String()
	}
	if event.PropertyID != nil {
		vars["property_id"] = event.PropertyID.String()
	}
	return vars
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// SubstituteVariables replaces {{name}} placeholders in the input string.
// Placeholders with no matching variable are left verbatim so missing data is
// visible downstream instead of silently erased.
func SubstituteVariables(input string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			return match
		}
		return stringify(value)
	})
}

func substituteConfig(config map[string]any, vars map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]any, len(config))
	for key, value := range config {
		out[key] = substituteValue(value, vars)
	}
	return out
}

func substituteValue(value any, vars map[string]any) any {
	switch val := value.(type) {
	case string:
		return SubstituteVariables(val, vars)
	case map[string]any:
		return substituteConfig(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, vars)
		}
		return out
	default:
		return value
	}
}

func stringify(value any) string {
	switch val := value.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		// Integral floats print without a trailing .0, matching how payload
		// numbers are usually authored.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
