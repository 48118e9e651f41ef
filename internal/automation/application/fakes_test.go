package application

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonDecode(r *http.Request, into *map[string]any) error {
	return json.NewDecoder(r.Body).Decode(into)
}

// In-memory repositories backing the application-layer tests.

type memAutomationRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Automation
}

func newMemAutomationRepo() *memAutomationRepo {
	return &memAutomationRepo{items: make(map[uuid.UUID]*domain.Automation)}
}

func (r *memAutomationRepo) Create(_ context.Context, automation *domain.Automation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[automation.ID] = automation
	return nil
}

func (r *memAutomationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id], nil
}

func (r *memAutomationRepo) ListActiveByBuilder(_ context.Context, builderID uuid.UUID) ([]*domain.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Automation
	for _, a := range r.items {
		if a.BuilderID == builderID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAutomationRepo) RecordExecution(_ context.Context, id uuid.UUID, success bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.items[id]; ok {
		a.RecordExecution(success, at)
	}
	return nil
}

type memEventRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.TriggerEvent
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{items: make(map[uuid.UUID]*domain.TriggerEvent)}
}

func (r *memEventRepo) Create(_ context.Context, event *domain.TriggerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[event.ID] = event
	return nil
}

func (r *memEventRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.TriggerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id], nil
}

func (r *memEventRepo) AppendMatch(_ context.Context, eventID, automationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.items[eventID]; ok {
		e.MatchedAutomations = append(e.MatchedAutomations, automationID)
	}
	return nil
}

type memQueueRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.QueueItem
	// enqueueErr, when set, fails the next Enqueue call.
	enqueueErr error
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{items: make(map[uuid.UUID]*domain.QueueItem)}
}

func (r *memQueueRepo) Enqueue(_ context.Context, item *domain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		err := r.enqueueErr
		r.enqueueErr = nil
		return err
	}
	r.items[item.ID] = item
	return nil
}

func (r *memQueueRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id], nil
}

func (r *memQueueRepo) ClaimPending(_ context.Context, limit int) ([]*domain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var due []*domain.QueueItem
	for _, item := range r.items {
		if item.Status == domain.QueueStatusPending && !item.ScheduledFor.After(now) {
			due = append(due, item)
		}
	}
	// Priority descending, then scheduled_for ascending.
	for i := 0; i < len(due); i++ {
		for j := i + 1; j < len(due); j++ {
			if due[j].Priority > due[i].Priority ||
				(due[j].Priority == due[i].Priority && due[j].ScheduledFor.Before(due[i].ScheduledFor)) {
				due[i], due[j] = due[j], due[i]
			}
		}
	}
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memQueueRepo) MarkProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return false, domain.ErrQueueItemNotFound
	}
	if err := item.BeginProcessing(time.Now()); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *memQueueRepo) MarkCompleted(_ context.Context, id, executionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return domain.ErrQueueItemNotFound
	}
	return item.Complete(executionID, time.Now())
}

func (r *memQueueRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, backoff time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return false, domain.ErrQueueItemNotFound
	}
	return item.Fail(errMsg, backoff, time.Now())
}

func (r *memQueueRepo) MarkFailedPermanent(_ context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return domain.ErrQueueItemNotFound
	}
	item.ExhaustAttempts()
	_, err := item.Fail(errMsg, 0, time.Now())
	return err
}

func (r *memQueueRepo) Cancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return domain.ErrQueueItemNotFound
	}
	return item.Cancel(time.Now())
}

func (r *memQueueRepo) Stats(_ context.Context, builderID uuid.UUID) (domain.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats domain.QueueStats
	for _, item := range r.items {
		if builderID != uuid.Nil && item.BuilderID != builderID {
			continue
		}
		switch item.Status {
		case domain.QueueStatusPending:
			stats.Pending++
		case domain.QueueStatusProcessing:
			stats.Processing++
		case domain.QueueStatusCompleted:
			stats.Completed++
		case domain.QueueStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

type memExecutionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Execution
}

func newMemExecutionRepo() *memExecutionRepo {
	return &memExecutionRepo{items: make(map[uuid.UUID]*domain.Execution)}
}

func (r *memExecutionRepo) Create(_ context.Context, execution *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[execution.ID] = execution
	return nil
}

func (r *memExecutionRepo) Update(_ context.Context, execution *domain.Execution) error {
	return r.Create(context.Background(), execution)
}

func (r *memExecutionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id], nil
}

func (r *memExecutionRepo) ListByAutomation(_ context.Context, automationID uuid.UUID, limit int) ([]*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Execution
	for _, e := range r.items {
		if e.AutomationID == automationID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// capturingPublisher records published messages for assertions.
type capturingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	routingKey string
	payload    []byte
}

func (p *capturingPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{routingKey: routingKey, payload: payload})
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) byKey(routingKey string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMessage
	for _, m := range p.messages {
		if m.routingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}
