package observability

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for observability data.
type contextKey string

const (
	correlationIDCtxKey contextKey = "correlation_id"
	eventIDCtxKey       contextKey = "event_id"
	builderIDCtxKey     contextKey = "builder_id"
)

// Standard attribute keys used in logs.
const (
	CorrelationIDKey = "correlation_id"
	EventIDKey       = "event_id"
	BuilderIDKey     = "builder_id"
	DurationKey      = "duration_ms"
	ErrorKey         = "error"
)

// WithCorrelationID adds a correlation ID to the context.
// If id is empty, a new UUID is generated.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationIDCtxKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDCtxKey).(string); ok {
		return id
	}
	return ""
}

// WithEventID records the trigger event being handled on the context.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDCtxKey, id)
}

// EventIDFromContext extracts the trigger event ID from context.
func EventIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(eventIDCtxKey).(string); ok {
		return id
	}
	return ""
}

// WithBuilderID records the tenant being served on the context.
func WithBuilderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, builderIDCtxKey, id)
}

// BuilderIDFromContext extracts the builder ID from context.
func BuilderIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(builderIDCtxKey).(string); ok {
		return id
	}
	return ""
}
