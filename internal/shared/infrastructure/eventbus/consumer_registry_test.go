package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
)

type recordingConsumer struct {
	types   []string
	handled []*eventbus.InboundEvent
	err     error
}

func (c *recordingConsumer) EventTypes() []string { return c.types }

func (c *recordingConsumer) Handle(_ context.Context, event *eventbus.InboundEvent) error {
	c.handled = append(c.handled, event)
	return c.err
}

func TestConsumerRegistry_DispatchRoutesByKey(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	leadConsumer := &recordingConsumer{types: []string{"lead.created"}}
	propertyConsumer := &recordingConsumer{types: []string{"property.updated"}}
	registry.Register(leadConsumer)
	registry.Register(propertyConsumer)

	event := &eventbus.InboundEvent{EventID: uuid.New(), RoutingKey: "lead.created"}
	err := registry.Dispatch(context.Background(), event)

	assert.NoError(t, err)
	assert.Len(t, leadConsumer.handled, 1)
	assert.Empty(t, propertyConsumer.handled)
}

func TestConsumerRegistry_DispatchWithoutConsumersIsNoop(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)

	err := registry.Dispatch(context.Background(), &eventbus.InboundEvent{RoutingKey: "lead.deleted"})
	assert.NoError(t, err)
}

func TestConsumerRegistry_OneFailureDoesNotStopOthers(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	failing := &recordingConsumer{types: []string{"lead.created"}, err: errors.New("boom")}
	healthy := &recordingConsumer{types: []string{"lead.created"}}
	registry.Register(failing)
	registry.Register(healthy)

	err := registry.Dispatch(context.Background(), &eventbus.InboundEvent{RoutingKey: "lead.created"})

	assert.Error(t, err)
	assert.Len(t, failing.handled, 1)
	assert.Len(t, healthy.handled, 1)
}

func TestConsumerRegistry_Counts(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	registry.Register(&recordingConsumer{types: []string{"lead.created", "lead.updated"}})

	assert.Equal(t, 2, registry.ConsumerCount())
	assert.ElementsMatch(t, []string{"lead.created", "lead.updated"}, registry.EventTypes())
}
