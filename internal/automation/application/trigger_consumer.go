package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
)

// TriggerConsumer bridges the message bus to the dispatcher: every inbound
// platform event becomes a trigger event run through automation matching.
type TriggerConsumer struct {
	dispatcher *Dispatcher
	eventTypes []string
	logger     *slog.Logger
}

// DefaultTriggerEventTypes are the routing keys the engine listens on when no
// explicit subscription list is configured.
var DefaultTriggerEventTypes = []string{
	"lead.created",
	"lead.updated",
	"lead.deleted",
	"lead.status_changed",
	"property.created",
	"property.updated",
	"appointment.scheduled",
}

// NewTriggerConsumer creates a consumer for the given routing keys.
func NewTriggerConsumer(dispatcher *Dispatcher, eventTypes []string, logger *slog.Logger) *TriggerConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(eventTypes) == 0 {
		eventTypes = DefaultTriggerEventTypes
	}
	return &TriggerConsumer{
		dispatcher: dispatcher,
		eventTypes: eventTypes,
		logger:     logger,
	}
}

// EventTypes implements eventbus.EventConsumer.
func (c *TriggerConsumer) EventTypes() []string {
	return c.eventTypes
}

// Handle implements eventbus.EventConsumer. The payload becomes the
// evaluation data; lead and property identifiers are lifted out of it when
// present.
func (c *TriggerConsumer) Handle(ctx context.Context, inbound *eventbus.InboundEvent) error {
	data := map[string]any{}
	if len(inbound.Payload) > 0 {
		if err := json.Unmarshal(inbound.Payload, &data); err != nil {
			// Malformed payloads are dropped, not retried.
			c.logger.Error("trigger payload is not a JSON object, dropping",
				"routing_key", inbound.RoutingKey, "error", err)
			return nil
		}
	}

	event := domain.NewTriggerEvent(
		inbound.RoutingKey,
		inbound.RoutingKey,
		domain.EventSourceSystem,
		kindFromRoutingKey(inbound.RoutingKey),
		data,
		inbound.BuilderID,
	)
	event.LeadID = uuidField(data, "lead_id")
	event.PropertyID = uuidField(data, "property_id")

	if _, err := c.dispatcher.Dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch %s: %w", inbound.RoutingKey, err)
	}
	return nil
}

func kindFromRoutingKey(routingKey string) domain.EventKind {
	switch {
	case strings.HasSuffix(routingKey, ".created"), strings.HasSuffix(routingKey, ".scheduled"):
		return domain.EventKindCreate
	case strings.HasSuffix(routingKey, ".deleted"):
		return domain.EventKindDelete
	default:
		return domain.EventKindUpdate
	}
}

func uuidField(data map[string]any, key string) *uuid.UUID {
	raw, ok := data[key].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
