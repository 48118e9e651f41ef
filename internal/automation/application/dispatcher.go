// Package application orchestrates the automation pipeline: matching trigger
// events against stored automations, queueing the matches as durable jobs,
// and processing those jobs through the action executor.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/automation/engine"
	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
)

// Routing keys for events emitted by the pipeline.
const (
	RoutingKeyMatched  = "automation.matched"
	RoutingKeyExecuted = "automation.executed"
)

// DispatchResult summarizes the handling of one trigger event.
type DispatchResult struct {
	EventID   uuid.UUID   `json:"event_id"`
	Evaluated int         `json:"evaluated"`
	Matched   []uuid.UUID `json:"matched"`
	Queued    []uuid.UUID `json:"queued"`
}

// Dispatcher receives trigger events, evaluates every active automation for
// the event's builder, and enqueues a queue item per match.
type Dispatcher struct {
	automations domain.AutomationRepository
	events      domain.TriggerEventRepository
	queue       domain.QueueRepository
	evaluator   *engine.Evaluator
	publisher   eventbus.Publisher
	logger      *slog.Logger
}

// NewDispatcher creates a trigger dispatcher. The publisher may be a noop.
func NewDispatcher(
	automations domain.AutomationRepository,
	events domain.TriggerEventRepository,
	queue domain.QueueRepository,
	evaluator *engine.Evaluator,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		automations: automations,
		events:      events,
		queue:       queue,
		evaluator:   evaluator,
		publisher:   publisher,
		logger:      logger,
	}
}

// Dispatch persists the trigger event, evaluates all active automations for
// its builder, and enqueues a job per match. A failure while evaluating or
// enqueueing one automation never blocks the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.TriggerEvent) (*DispatchResult, error) {
	if err := d.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("persist trigger event: %w", err)
	}

	active, err := d.automations.ListActiveByBuilder(ctx, event.BuilderID)
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}

	result := &DispatchResult{EventID: event.ID, Evaluated: len(active)}
	evalContext := event.Context()

	for _, automation := range active {
		if automation.TriggerConditions == nil {
			// An automation without conditions never fires.
			continue
		}
		if !d.evaluator.Evaluate(automation.TriggerConditions, event.EventData, evalContext).Matches {
			continue
		}

		result.Matched = append(result.Matched, automation.ID)
		if err := d.events.AppendMatch(ctx, event.ID, automation.ID); err != nil {
			d.logger.Warn("failed to record automation match on event",
				"event_id", event.ID, "automation_id", automation.ID, "error", err)
		}

		item := domain.NewQueueItem(automation.ID, event.ID, event.BuilderID, evalContext, automation.Priority)
		if err := d.queue.Enqueue(ctx, item); err != nil {
			d.logger.Error("failed to enqueue matched automation",
				"event_id", event.ID, "automation_id", automation.ID, "error", err)
			continue
		}
		result.Queued = append(result.Queued, item.ID)
		d.publishMatched(ctx, event, automation, item)
	}

	d.logger.Info("trigger event dispatched",
		"event_id", event.ID,
		"builder_id", event.BuilderID,
		"trigger_type", event.TriggerType,
		"evaluated", result.Evaluated,
		"matched", len(result.Matched),
		"queued", len(result.Queued),
	)
	return result, nil
}

func (d *Dispatcher) publishMatched(ctx context.Context, event *domain.TriggerEvent, automation *domain.Automation, item *domain.QueueItem) {
	if d.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event_id":      event.ID,
		"automation_id": automation.ID,
		"queue_item_id": item.ID,
		"builder_id":    event.BuilderID,
		"trigger_type":  event.TriggerType,
		"matched_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := d.publisher.Publish(ctx, RoutingKeyMatched, payload); err != nil {
		d.logger.Warn("failed to publish match event", "queue_item_id", item.ID, "error", err)
	}
}
