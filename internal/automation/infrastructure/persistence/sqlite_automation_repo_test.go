package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

func storedAutomation(t *testing.T, repo *SQLiteAutomationRepository, builderID uuid.UUID, name string) *domain.Automation {
	t.Helper()
	cond := domain.AndOf(
		domain.Leaf("lead.status", "equals", "new"),
		domain.Leaf("lead.score", "greater_than", 50),
	)
	actions := []domain.Action{
		{Type: domain.ActionTypeEmail, Config: map[string]any{"to": "{{lead.email}}", "template": "welcome"}},
		{Type: domain.ActionTypeTag, Config: map[string]any{"tags": []any{"hot"}, "stop_on_failure": true}},
	}
	automation, err := domain.NewAutomation(builderID, name, &cond, actions)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), automation))
	return automation
}

func TestSQLiteAutomationRepository_RoundTrip(t *testing.T) {
	repo := NewSQLiteAutomationRepository(setupTestDB(t))
	builderID := uuid.New()

	automation := storedAutomation(t, repo, builderID, "welcome flow")
	got, err := repo.GetByID(context.Background(), automation.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, automation.ID, got.ID)
	assert.Equal(t, builderID, got.BuilderID)
	assert.Equal(t, "welcome flow", got.Name)
	assert.True(t, got.IsActive)
	assert.Equal(t, domain.DefaultPriority, got.Priority)
	require.NotNil(t, got.TriggerConditions)
	require.Len(t, got.TriggerConditions.And, 2)
	assert.Equal(t, "lead.status", got.TriggerConditions.And[0].Field)
	require.Len(t, got.Actions, 2)
	assert.Equal(t, domain.ActionTypeEmail, got.Actions[0].Type)
	assert.True(t, got.Actions[1].StopOnFailure())
	assert.Nil(t, got.LastExecutionAt)
}

func TestSQLiteAutomationRepository_GetByIDMissing(t *testing.T) {
	repo := NewSQLiteAutomationRepository(setupTestDB(t))

	got, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteAutomationRepository_ListActiveByBuilder(t *testing.T) {
	repo := NewSQLiteAutomationRepository(setupTestDB(t))
	builderID := uuid.New()

	low := storedAutomation(t, repo, builderID, "low")
	anyStatus := domain.Leaf("lead.status", "is_set", nil)
	urgent, err := domain.NewAutomation(builderID, "urgent", &anyStatus, nil)
	require.NoError(t, err)
	urgent.SetPriority(9)
	require.NoError(t, repo.Create(context.Background(), urgent))
	disabled, err := domain.NewAutomation(builderID, "disabled", nil, nil)
	require.NoError(t, err)
	disabled.Deactivate()
	require.NoError(t, repo.Create(context.Background(), disabled))
	storedAutomation(t, repo, uuid.New(), "other tenant")

	listed, err := repo.ListActiveByBuilder(context.Background(), builderID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, urgent.ID, listed[0].ID)
	assert.Equal(t, low.ID, listed[1].ID)
}

func TestSQLiteAutomationRepository_RecordExecution(t *testing.T) {
	repo := NewSQLiteAutomationRepository(setupTestDB(t))
	automation := storedAutomation(t, repo, uuid.New(), "counters")
	at := time.Now()

	require.NoError(t, repo.RecordExecution(context.Background(), automation.ID, true, at))
	require.NoError(t, repo.RecordExecution(context.Background(), automation.ID, true, at))
	require.NoError(t, repo.RecordExecution(context.Background(), automation.ID, false, at))

	got, err := repo.GetByID(context.Background(), automation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.TotalExecutions)
	assert.Equal(t, int64(2), got.SuccessfulExecutions)
	assert.Equal(t, int64(1), got.FailedExecutions)
	require.NotNil(t, got.LastExecutionAt)
	assert.WithinDuration(t, at, *got.LastExecutionAt, time.Second)
}
