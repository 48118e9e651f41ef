// Package eventbus provides the messaging layer between the automation
// engine and the rest of the platform: trigger events arrive over it and
// match/execution notifications leave over it.
package eventbus

import (
	"context"
	"log/slog"
)

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// NoopPublisher discards every message. Used when the engine runs without a
// broker.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that drops messages, logging each
// discarded routing key at debug level.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("event discarded, no broker configured", "routing_key", routingKey, "bytes", len(payload))
	return nil
}

// Close implements Publisher.
func (p *NoopPublisher) Close() error { return nil }
