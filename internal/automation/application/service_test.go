package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/automation/engine"
)

func newTestService(queue *memQueueRepo) (*Service, *memAutomationRepo) {
	automations := newMemAutomationRepo()
	if queue == nil {
		queue = newMemQueueRepo()
	}
	registry := engine.NewRegistry(nil)
	service := NewService(
		automations,
		queue,
		newMemExecutionRepo(),
		engine.NewValidator(registry),
		engine.NewEvaluator(registry, nil, engine.Options{}),
		testLogger(),
	)
	return service, automations
}

func TestService_CreateAutomationValidatesConditions(t *testing.T) {
	service, automations := newTestService(nil)
	builderID := uuid.New()

	bad := domain.Leaf("lead.score", "no_such_operator", float64(1))
	_, err := service.CreateAutomation(context.Background(), CreateAutomationCommand{
		BuilderID:  builderID,
		Name:       "broken",
		Conditions: &bad,
		Actions:    tagAction(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCondition)

	good := domain.Leaf("lead.score", "greater_than", float64(80))
	automation, err := service.CreateAutomation(context.Background(), CreateAutomationCommand{
		BuilderID:  builderID,
		Name:       "hot-lead",
		Conditions: &good,
		Actions:    tagAction(),
		Priority:   9,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, automation.Priority)

	stored, err := automations.GetByID(context.Background(), automation.ID)
	require.NoError(t, err)
	assert.Equal(t, "hot-lead", stored.Name)
}

func TestService_TestConditionReturnsTrace(t *testing.T) {
	service, _ := newTestService(nil)

	cond := domain.Leaf("score", "greater_than", float64(50))
	result := service.TestCondition(&cond, map[string]any{"score": float64(80)}, nil)

	assert.True(t, result.Matches)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "score", result.Trace[0].Field)
}

func TestService_CancelQueueItem(t *testing.T) {
	queue := newMemQueueRepo()
	service, _ := newTestService(queue)

	item := domain.NewQueueItem(uuid.New(), uuid.New(), uuid.New(), nil, 5)
	require.NoError(t, queue.Enqueue(context.Background(), item))

	require.NoError(t, service.CancelQueueItem(context.Background(), item.ID))
	stored, _ := queue.GetByID(context.Background(), item.ID)
	assert.Equal(t, domain.QueueStatusCancelled, stored.Status)

	// Terminal items cannot be cancelled again.
	assert.Error(t, service.CancelQueueItem(context.Background(), item.ID))
}

func TestService_QueueStatsScopesToBuilder(t *testing.T) {
	queue := newMemQueueRepo()
	service, _ := newTestService(queue)
	builderID := uuid.New()

	require.NoError(t, queue.Enqueue(context.Background(), domain.NewQueueItem(uuid.New(), uuid.New(), builderID, nil, 5)))
	require.NoError(t, queue.Enqueue(context.Background(), domain.NewQueueItem(uuid.New(), uuid.New(), uuid.New(), nil, 5)))

	scoped, err := service.QueueStats(context.Background(), builderID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, scoped.Pending)

	all, err := service.QueueStats(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Pending)
}
