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

func TestSQLiteExecutionRepository_RoundTrip(t *testing.T) {
	repo := NewSQLiteExecutionRepository(setupTestDB(t))
	leadID := uuid.New()

	execution := domain.NewExecution(uuid.New(), uuid.New(), uuid.New(), &leadID)
	require.NoError(t, repo.Create(context.Background(), execution))

	got, err := repo.GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ExecutionStatusRunning, got.Status)
	require.NotNil(t, got.LeadID)
	assert.Equal(t, leadID, *got.LeadID)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.DurationMs)

	execution.Finish([]domain.ActionResult{
		{Success: true, ActionType: domain.ActionTypeEmail},
		{Success: false, ActionType: domain.ActionTypeWebhook, Error: "endpoint returned status 500"},
	}, time.Now())
	require.NoError(t, repo.Update(context.Background(), execution))

	got, err = repo.GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Equal(t, 2, got.ActionsAttempted)
	assert.Equal(t, 1, got.ActionsSucceeded)
	assert.Equal(t, 1, got.ActionsFailed)
	require.Len(t, got.Results, 2)
	assert.Equal(t, domain.ActionTypeWebhook, got.Results[1].ActionType)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.DurationMs)
}

func TestSQLiteExecutionRepository_GetByIDMissing(t *testing.T) {
	repo := NewSQLiteExecutionRepository(setupTestDB(t))

	got, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteExecutionRepository_ListByAutomation(t *testing.T) {
	repo := NewSQLiteExecutionRepository(setupTestDB(t))
	automationID := uuid.New()

	older := domain.NewExecution(automationID, uuid.New(), uuid.New(), nil)
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := domain.NewExecution(automationID, uuid.New(), uuid.New(), nil)
	unrelated := domain.NewExecution(uuid.New(), uuid.New(), uuid.New(), nil)
	for _, e := range []*domain.Execution{older, newer, unrelated} {
		require.NoError(t, repo.Create(context.Background(), e))
	}

	listed, err := repo.ListByAutomation(context.Background(), automationID, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, newer.ID, listed[0].ID)
	assert.Equal(t, older.ID, listed[1].ID)

	limited, err := repo.ListByAutomation(context.Background(), automationID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}
