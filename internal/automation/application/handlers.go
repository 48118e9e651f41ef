package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// Outbound gateways the action handlers depend on. Implementations live at
// the edge; tests and the standalone worker use the log-backed defaults.

// EmailSender delivers a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a single SMS message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Notifier delivers an in-app notification to a user.
type Notifier interface {
	Notify(ctx context.Context, recipient, title, message string) error
}

// CRMClient mutates lead records in the CRM.
type CRMClient interface {
	SyncLead(ctx context.Context, leadID string, payload map[string]any) error
	UpdateLeadFields(ctx context.Context, leadID string, fields map[string]any) error
	AddLeadTags(ctx context.Context, leadID string, tags []string) error
	AssignLead(ctx context.Context, leadID, assignee string) error
}

// HandlerDeps bundles the gateways needed to wire the full action set.
type HandlerDeps struct {
	Email    EmailSender
	SMS      SMSSender
	Notifier Notifier
	CRM      CRMClient
	Webhook  *WebhookHandler
	// MaxDelay caps the delay action; zero means one minute.
	MaxDelay time.Duration
}

// RegisterDefaultHandlers installs a handler for every supported action type.
func RegisterDefaultHandlers(e *Executor, deps HandlerDeps, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	maxDelay := deps.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}

	// Unset integrations fall back to log-only implementations so every
	// action type always has a handler.
	if deps.Email == nil {
		deps.Email = &LogEmailSender{Logger: logger}
	}
	if deps.SMS == nil {
		deps.SMS = &LogSMSSender{Logger: logger}
	}
	if deps.Notifier == nil {
		deps.Notifier = &LogNotifier{Logger: logger}
	}
	if deps.CRM == nil {
		deps.CRM = &LogCRMClient{Logger: logger}
	}
	if deps.Webhook == nil {
		deps.Webhook = NewWebhookHandler(DefaultWebhookConfig(), logger)
	}

	e.Register(domain.ActionTypeEmail, ActionHandlerFunc(func(ctx context.Context, action domain.Action, _ map[string]any) (map[string]any, error) {
		to, err := requireString(action.Config, "to")
		if err != nil {
			return nil, err
		}
		subject, _ := configString(action.Config, "subject")
		body, _ := configString(action.Config, "body")
		if err := deps.Email.SendEmail(ctx, to, subject, body); err != nil {
			return nil, fmt.Errorf("send email: %w", err)
		}
		return map[string]any{"to": to}, nil
	}))

	e.Register(domain.ActionTypeSMS, ActionHandlerFunc(func(ctx context.Context, action domain.Action, _ map[string]any) (map[string]any, error) {
		to, err := requireString(action.Config, "to")
		if err != nil {
			return nil, err
		}
		message, _ := configString(action.Config, "message")
		if err := deps.SMS.SendSMS(ctx, to, message); err != nil {
			return nil, fmt.Errorf("send sms: %w", err)
		}
		return map[string]any{"to": to}, nil
	}))

	e.Register(domain.ActionTypeNotification, ActionHandlerFunc(func(ctx context.Context, action domain.Action, _ map[string]any) (map[string]any, error) {
		recipient, err := requireString(action.Config, "recipient")
		if err != nil {
			return nil, err
		}
		title, _ := configString(action.Config, "title")
		message, _ := configString(action.Config, "message")
		if err := deps.Notifier.Notify(ctx, recipient, title, message); err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		return map[string]any{"recipient": recipient}, nil
	}))

	e.Register(domain.ActionTypeWebhook, deps.Webhook)

	e.Register(domain.ActionTypeCRM, ActionHandlerFunc(func(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error) {
		leadID, err := leadIDFrom(action.Config, vars)
		if err != nil {
			return nil, err
		}
		payload, _ := action.Config["payload"].(map[string]any)
		if err := deps.CRM.SyncLead(ctx, leadID, payload); err != nil {
			return nil, fmt.Errorf("sync lead: %w", err)
		}
		return map[string]any{"lead_id": leadID}, nil
	}))

	e.Register(domain.ActionTypeFieldUpdate, ActionHandlerFunc(func(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error) {
		leadID, err := leadIDFrom(action.Config, vars)
		if err != nil {
			return nil, err
		}
		fields, ok := action.Config["fields"].(map[string]any)
		if !ok || len(fields) == 0 {
			return nil, fmt.Errorf("field_update action requires a non-empty fields object")
		}
		if err := deps.CRM.UpdateLeadFields(ctx, leadID, fields); err != nil {
			return nil, fmt.Errorf("update lead fields: %w", err)
		}
		return map[string]any{"lead_id": leadID, "updated": len(fields)}, nil
	}))

	e.Register(domain.ActionTypeTag, ActionHandlerFunc(func(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error) {
		leadID, err := leadIDFrom(action.Config, vars)
		if err != nil {
			return nil, err
		}
		tags := stringSlice(action.Config["tags"])
		if len(tags) == 0 {
			return nil, fmt.Errorf("tag action requires a non-empty tags list")
		}
		if err := deps.CRM.AddLeadTags(ctx, leadID, tags); err != nil {
			return nil, fmt.Errorf("add lead tags: %w", err)
		}
		return map[string]any{"lead_id": leadID, "tags": tags}, nil
	}))

	e.Register(domain.ActionTypeAssign, ActionHandlerFunc(func(ctx context.Context, action domain.Action, vars map[string]any) (map[string]any, error) {
		leadID, err := leadIDFrom(action.Config, vars)
		if err != nil {
			return nil, err
		}
		assignee, err := requireString(action.Config, "assignee")
		if err != nil {
			return nil, err
		}
		if err := deps.CRM.AssignLead(ctx, leadID, assignee); err != nil {
			return nil, fmt.Errorf("assign lead: %w", err)
		}
		return map[string]any{"lead_id": leadID, "assignee": assignee}, nil
	}))

	e.Register(domain.ActionTypeDelay, ActionHandlerFunc(func(ctx context.Context, action domain.Action, _ map[string]any) (map[string]any, error) {
		seconds, ok := configFloat(action.Config, "delay_seconds")
		if !ok || seconds < 0 {
			return nil, fmt.Errorf("delay action requires a non-negative delay_seconds value")
		}
		delay := time.Duration(seconds * float64(time.Second))
		if delay > maxDelay {
			logger.Warn("delay action clamped", "requested", delay, "max", maxDelay)
			delay = maxDelay
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		return map[string]any{"delayed_ms": delay.Milliseconds()}, nil
	}))
}

// WebhookHandler POSTs JSON payloads to external URLs behind a circuit
// breaker, so a flapping endpoint cannot stall every queue worker.
type WebhookHandler struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[int]
	logger  *slog.Logger
}

// WebhookConfig tunes the webhook handler.
type WebhookConfig struct {
	Timeout          time.Duration
	MaxRequests      uint32
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

// DefaultWebhookConfig returns sensible defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:          10 * time.Second,
		MaxRequests:      3,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewWebhookHandler creates a webhook handler with a pooled transport.
func NewWebhookHandler(config WebhookConfig, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	settings := gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: config.MaxRequests,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &WebhookHandler{
		client:  &http.Client{Transport: transport, Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker[int](settings),
		logger:  logger,
	}
}

// Handle implements ActionHandler.
func (h *WebhookHandler) Handle(ctx context.Context, action domain.Action, _ map[string]any) (map[string]any, error) {
	url, err := requireString(action.Config, "url")
	if err != nil {
		return nil, err
	}
	method, ok := configString(action.Config, "method")
	if !ok {
		method = http.MethodPost
	}
	payload, _ := action.Config["payload"].(map[string]any)

	status, err := h.breaker.Execute(func() (int, error) {
		return h.send(ctx, method, url, payload, action.Config)
	})
	if err != nil {
		return map[string]any{"url": url}, fmt.Errorf("webhook %s: %w", url, err)
	}
	return map[string]any{"url": url, "status": status}, nil
}

func (h *WebhookHandler) send(ctx context.Context, method, url string, payload map[string]any, config map[string]any) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Log-backed gateway implementations for standalone operation.

// LogEmailSender logs instead of delivering.
type LogEmailSender struct{ Logger *slog.Logger }

// SendEmail implements EmailSender.
func (s LogEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info("email dispatched", "to", to, "subject", subject)
	return nil
}

// LogSMSSender logs instead of delivering.
type LogSMSSender struct{ Logger *slog.Logger }

// SendSMS implements SMSSender.
func (s LogSMSSender) SendSMS(_ context.Context, to, _ string) error {
	s.Logger.Info("sms dispatched", "to", to)
	return nil
}

// LogNotifier logs instead of delivering.
type LogNotifier struct{ Logger *slog.Logger }

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, recipient, title, _ string) error {
	n.Logger.Info("notification dispatched", "recipient", recipient, "title", title)
	return nil
}

// LogCRMClient logs instead of mutating a CRM.
type LogCRMClient struct{ Logger *slog.Logger }

// SyncLead implements CRMClient.
func (c LogCRMClient) SyncLead(_ context.Context, leadID string, _ map[string]any) error {
	c.Logger.Info("lead synced to crm", "lead_id", leadID)
	return nil
}

// UpdateLeadFields implements CRMClient.
func (c LogCRMClient) UpdateLeadFields(_ context.Context, leadID string, fields map[string]any) error {
	c.Logger.Info("lead fields updated", "lead_id", leadID, "fields", len(fields))
	return nil
}

// AddLeadTags implements CRMClient.
func (c LogCRMClient) AddLeadTags(_ context.Context, leadID string, tags []string) error {
	c.Logger.Info("lead tags added", "lead_id", leadID, "tags", tags)
	return nil
}

// AssignLead implements CRMClient.
func (c LogCRMClient) AssignLead(_ context.Context, leadID, assignee string) error {
	c.Logger.Info("lead assigned", "lead_id", leadID, "assignee", assignee)
	return nil
}

// Config helpers.

func configString(config map[string]any, key string) (string, bool) {
	value, ok := config[key].(string)
	return value, ok && value != ""
}

func requireString(config map[string]any, key string) (string, error) {
	value, ok := configString(config, key)
	if !ok {
		return "", fmt.Errorf("action config is missing required field %q", key)
	}
	return value, nil
}

func configFloat(config map[string]any, key string) (float64, bool) {
	switch value := config[key].(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}

func leadIDFrom(config map[string]any, vars map[string]any) (string, error) {
	if id, ok := configString(config, "lead_id"); ok {
		return id, nil
	}
	if id, ok := vars["lead_id"].(string); ok && id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no lead_id available for action")
}

func stringSlice(value any) []string {
	switch list := value.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
