package eventbus_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
)

func TestInProcessEventBus_PublishDispatchesSynchronously(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"lead.created"}}
	bus.RegisterConsumer(consumer)

	payload, err := json.Marshal(eventbus.InboundEvent{
		EventID:    uuid.New(),
		RoutingKey: "lead.created",
		BuilderID:  uuid.New(),
		Payload:    json.RawMessage(`{"score": 90}`),
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "lead.created", payload))
	require.Len(t, consumer.handled, 1)
	assert.JSONEq(t, `{"score": 90}`, string(consumer.handled[0].Payload))
}

func TestInProcessEventBus_RoutingKeyFallsBackToParameter(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"lead.updated"}}
	bus.RegisterConsumer(consumer)

	require.NoError(t, bus.Publish(context.Background(), "lead.updated", []byte(`{}`)))
	require.Len(t, consumer.handled, 1)
	assert.Equal(t, "lead.updated", consumer.handled[0].RoutingKey)
}

func TestInProcessEventBus_MalformedPayloadIsDropped(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"lead.created"}}
	bus.RegisterConsumer(consumer)

	assert.NoError(t, bus.Publish(context.Background(), "lead.created", []byte("not json")))
	assert.Empty(t, consumer.handled)
}
