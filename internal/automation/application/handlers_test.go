package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

type fakeCRM struct {
	mu       sync.Mutex
	tags     map[string][]string
	fields   map[string]map[string]any
	assigned map[string]string
	synced   []string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		tags:     make(map[string][]string),
		fields:   make(map[string]map[string]any),
		assigned: make(map[string]string),
	}
}

func (c *fakeCRM) SyncLead(_ context.Context, leadID string, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = append(c.synced, leadID)
	return nil
}

func (c *fakeCRM) UpdateLeadFields(_ context.Context, leadID string, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[leadID] = fields
	return nil
}

func (c *fakeCRM) AddLeadTags(_ context.Context, leadID string, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[leadID] = append(c.tags[leadID], tags...)
	return nil
}

func (c *fakeCRM) AssignLead(_ context.Context, leadID, assignee string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assigned[leadID] = assignee
	return nil
}

func defaultExecutorWith(crm CRMClient, webhook *WebhookHandler) *Executor {
	executor := NewExecutor(nil)
	if webhook == nil {
		webhook = NewWebhookHandler(DefaultWebhookConfig(), nil)
	}
	RegisterDefaultHandlers(executor, HandlerDeps{
		Email:    LogEmailSender{Logger: testLogger()},
		SMS:      LogSMSSender{Logger: testLogger()},
		Notifier: LogNotifier{Logger: testLogger()},
		CRM:      crm,
		Webhook:  webhook,
		MaxDelay: 50 * time.Millisecond,
	}, nil)
	return executor
}

func runSingleAction(t *testing.T, executor *Executor, action domain.Action, data map[string]any) *domain.Execution {
	t.Helper()
	builderID := uuid.New()
	event := testEvent(builderID, data)
	automation, err := domain.NewAutomation(builderID, "single", nil, []domain.Action{action})
	require.NoError(t, err)
	item := domain.NewQueueItem(automation.ID, event.ID, builderID, event.Context(), 5)
	return executor.Execute(context.Background(), automation, event, item)
}

func TestHandlers_TagFieldUpdateAndAssign(t *testing.T) {
	crm := newFakeCRM()
	executor := defaultExecutorWith(crm, nil)
	leadID := uuid.New().String()
	data := map[string]any{"lead_id": leadID}

	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeTag,
		Config: map[string]any{"tags": []any{"vip", "hot"}},
	}, data)
	require.True(t, execution.Succeeded(), execution.ErrorMessage)
	assert.Equal(t, []string{"vip", "hot"}, crm.tags[leadID], "lead id comes from the payload when not in config")

	execution = runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeFieldUpdate,
		Config: map[string]any{"fields": map[string]any{"status": "contacted"}},
	}, data)
	require.True(t, execution.Succeeded())
	assert.Equal(t, "contacted", crm.fields[leadID]["status"])

	execution = runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeAssign,
		Config: map[string]any{"assignee": "agent-7"},
	}, data)
	require.True(t, execution.Succeeded())
	assert.Equal(t, "agent-7", crm.assigned[leadID])
}

func TestHandlers_TagWithoutLeadFails(t *testing.T) {
	executor := defaultExecutorWith(newFakeCRM(), nil)

	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeTag,
		Config: map[string]any{"tags": []any{"vip"}},
	}, map[string]any{})

	assert.False(t, execution.Succeeded())
	assert.Contains(t, execution.Results[0].Error, "lead_id")
}

func TestHandlers_EmailRequiresRecipient(t *testing.T) {
	executor := defaultExecutorWith(newFakeCRM(), nil)

	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeEmail,
		Config: map[string]any{"subject": "hi"},
	}, nil)

	assert.False(t, execution.Succeeded())
	assert.Contains(t, execution.Results[0].Error, `"to"`)
}

func TestWebhookHandler_PostsSubstitutedPayload(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		received = map[string]any{}
		require.NoError(t, jsonDecode(r, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := defaultExecutorWith(newFakeCRM(), nil)
	execution := runSingleAction(t, executor, domain.Action{
		Type: domain.ActionTypeWebhook,
		Config: map[string]any{
			"url":     server.URL,
			"headers": map[string]any{"X-Token": "secret"},
			"payload": map[string]any{"name": "{{name}}"},
		},
	}, map[string]any{"name": "Ada"})

	require.True(t, execution.Succeeded(), execution.ErrorMessage)
	assert.Equal(t, "Ada", received["name"])
	assert.EqualValues(t, http.StatusOK, execution.Results[0].Data["status"])
}

func TestWebhookHandler_ErrorStatusFailsAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	executor := defaultExecutorWith(newFakeCRM(), nil)
	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeWebhook,
		Config: map[string]any{"url": server.URL},
	}, nil)

	assert.False(t, execution.Succeeded())
	assert.Contains(t, execution.Results[0].Error, "502")
}

func TestWebhookHandler_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	handler := NewWebhookHandler(WebhookConfig{
		Timeout:          time.Second,
		MaxRequests:      1,
		OpenTimeout:      time.Minute,
		FailureThreshold: 2,
	}, nil)
	executor := defaultExecutorWith(newFakeCRM(), handler)
	action := domain.Action{Type: domain.ActionTypeWebhook, Config: map[string]any{"url": server.URL}}

	runSingleAction(t, executor, action, nil)
	runSingleAction(t, executor, action, nil)
	execution := runSingleAction(t, executor, action, nil)

	assert.Contains(t, execution.Results[0].Error, "circuit breaker is open")
}

func TestDelayHandler_ClampsAndWaits(t *testing.T) {
	executor := defaultExecutorWith(newFakeCRM(), nil)

	start := time.Now()
	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeDelay,
		Config: map[string]any{"delay_seconds": float64(3600)},
	}, nil)

	require.True(t, execution.Succeeded())
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "an hour-long delay is clamped to the configured maximum")
}

func TestDelayHandler_RejectsNegative(t *testing.T) {
	executor := defaultExecutorWith(newFakeCRM(), nil)

	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeDelay,
		Config: map[string]any{"delay_seconds": float64(-1)},
	}, nil)

	assert.False(t, execution.Succeeded())
}

func TestDelayHandler_ZeroDelaySucceeds(t *testing.T) {
	executor := defaultExecutorWith(newFakeCRM(), nil)

	execution := runSingleAction(t, executor, domain.Action{
		Type:   domain.ActionTypeDelay,
		Config: map[string]any{"delay_seconds": float64(0)},
	}, nil)

	require.True(t, execution.Succeeded())
	assert.EqualValues(t, 0, execution.Results[0].Data["delayed_ms"])
}
