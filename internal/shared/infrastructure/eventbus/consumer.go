package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventConsumer handles specific event types.
type EventConsumer interface {
	// EventTypes returns the routing keys this consumer handles,
	// e.g. ["lead.created", "lead.status_changed"].
	EventTypes() []string

	// Handle processes the event.
	Handle(ctx context.Context, event *InboundEvent) error
}

// InboundEvent is one message received from the bus. For trigger events the
// payload carries the raw event data the condition evaluator runs against.
type InboundEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	RoutingKey string          `json:"routing_key"`
	BuilderID  uuid.UUID       `json:"builder_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Consumer defines the interface for consuming events from a message broker.
type Consumer interface {
	// Start begins consuming messages. This is a blocking call.
	Start(ctx context.Context) error

	// RegisterConsumer registers an event consumer.
	RegisterConsumer(consumer EventConsumer)

	// Close closes the consumer connection.
	Close() error
}
