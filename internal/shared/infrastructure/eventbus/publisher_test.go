package eventbus

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopPublisher_DiscardsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := NewNoopPublisher(logger)
	require.NoError(t, p.Publish(context.Background(), "automation.matched", []byte(`{}`)))
	require.NoError(t, p.Close())

	assert.Contains(t, buf.String(), "automation.matched")
}

func TestNoopPublisher_NilLoggerDefaults(t *testing.T) {
	p := NewNoopPublisher(nil)
	assert.NoError(t, p.Publish(context.Background(), "automation.executed", nil))
}
