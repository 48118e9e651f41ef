package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, MigrateSQLite(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

func pendingItem(t *testing.T, repo *SQLiteQueueRepository, priority int) *domain.QueueItem {
	t.Helper()
	item := domain.NewQueueItem(uuid.New(), uuid.New(), uuid.New(), map[string]any{"k": "v"}, priority)
	require.NoError(t, repo.Enqueue(context.Background(), item))
	return item
}

func TestSQLiteQueueRepository_RoundTrip(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))

	item := pendingItem(t, repo, 7)
	got, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.AutomationID, got.AutomationID)
	assert.Equal(t, item.BuilderID, got.BuilderID)
	assert.Equal(t, 7, got.Priority)
	assert.Equal(t, domain.QueueStatusPending, got.Status)
	assert.Equal(t, domain.DefaultMaxAttempts, got.MaxAttempts)
	assert.Equal(t, map[string]any{"k": "v"}, got.Context)
}

func TestSQLiteQueueRepository_GetByIDMissing(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))

	got, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteQueueRepository_ClaimOrdersByPriorityThenSchedule(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))

	low := pendingItem(t, repo, 1)
	high := pendingItem(t, repo, 7)
	mid := pendingItem(t, repo, 3)

	claimed, err := repo.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, high.ID, claimed[0].ID)
	assert.Equal(t, mid.ID, claimed[1].ID)
	assert.Equal(t, low.ID, claimed[2].ID)
}

func TestSQLiteQueueRepository_ClaimSkipsFutureItems(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))

	future := domain.NewQueueItem(uuid.New(), uuid.New(), uuid.New(), nil, 9)
	future.ScheduledFor = time.Now().Add(time.Hour)
	require.NoError(t, repo.Enqueue(context.Background(), future))
	due := pendingItem(t, repo, 1)

	claimed, err := repo.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
}

func TestSQLiteQueueRepository_MarkProcessingIsExclusive(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	item := pendingItem(t, repo, 5)

	first, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, first)

	// A second claim of the same item must lose.
	second, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	assert.False(t, second)

	got, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts, "only the winning claim consumes an attempt")
	assert.NotNil(t, got.StartedAt)
}

func TestSQLiteQueueRepository_MarkCompleted(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	item := pendingItem(t, repo, 5)
	executionID := uuid.New()

	_, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompleted(context.Background(), item.ID, executionID))

	got, _ := repo.GetByID(context.Background(), item.ID)
	assert.Equal(t, domain.QueueStatusCompleted, got.Status)
	require.NotNil(t, got.ExecutionID)
	assert.Equal(t, executionID, *got.ExecutionID)
	assert.NotNil(t, got.CompletedAt)

	// Terminal states admit no further transition.
	assert.ErrorIs(t, repo.MarkCompleted(context.Background(), item.ID, uuid.New()), domain.ErrInvalidTransition)
	_, err = repo.MarkFailed(context.Background(), item.ID, "late", time.Minute)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSQLiteQueueRepository_MarkFailedRetriesUntilBudgetExhausted(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	item := pendingItem(t, repo, 5)

	for attempt := 1; attempt < domain.DefaultMaxAttempts; attempt++ {
		claimed, err := repo.MarkProcessing(context.Background(), item.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		retried, err := repo.MarkFailed(context.Background(), item.ID, "boom", 0)
		require.NoError(t, err)
		assert.True(t, retried, "attempt %d should be retried", attempt)

		got, _ := repo.GetByID(context.Background(), item.ID)
		assert.Equal(t, domain.QueueStatusPending, got.Status)
		assert.Equal(t, "boom", got.LastError)
	}

	claimed, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	retried, err := repo.MarkFailed(context.Background(), item.ID, "boom", 0)
	require.NoError(t, err)
	assert.False(t, retried)

	got, _ := repo.GetByID(context.Background(), item.ID)
	assert.Equal(t, domain.QueueStatusFailed, got.Status)
	assert.Equal(t, domain.DefaultMaxAttempts, got.Attempts)
}

func TestSQLiteQueueRepository_MarkFailedPushesRetryOut(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	item := pendingItem(t, repo, 5)

	_, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	retried, err := repo.MarkFailed(context.Background(), item.ID, "boom", time.Hour)
	require.NoError(t, err)
	require.True(t, retried)

	claimed, err := repo.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "a rescheduled item is not due until its backoff elapses")
}

func TestSQLiteQueueRepository_MarkFailedPermanent(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	item := pendingItem(t, repo, 5)

	_, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailedPermanent(context.Background(), item.ID, "automation no longer exists"))

	got, _ := repo.GetByID(context.Background(), item.ID)
	assert.Equal(t, domain.QueueStatusFailed, got.Status)
	assert.Equal(t, got.MaxAttempts, got.Attempts)
	assert.Equal(t, "automation no longer exists", got.LastError)
}

func TestSQLiteQueueRepository_Cancel(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	item := pendingItem(t, repo, 5)

	require.NoError(t, repo.Cancel(context.Background(), item.ID))
	got, _ := repo.GetByID(context.Background(), item.ID)
	assert.Equal(t, domain.QueueStatusCancelled, got.Status)

	// Cancelled items cannot be claimed or cancelled again.
	claimed, err := repo.MarkProcessing(context.Background(), item.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.ErrorIs(t, repo.Cancel(context.Background(), item.ID), domain.ErrInvalidTransition)
}

func TestSQLiteQueueRepository_Stats(t *testing.T) {
	repo := NewSQLiteQueueRepository(setupTestDB(t))
	builderID := uuid.New()

	mine := domain.NewQueueItem(uuid.New(), uuid.New(), builderID, nil, 5)
	require.NoError(t, repo.Enqueue(context.Background(), mine))
	other := pendingItem(t, repo, 5)
	_, err := repo.MarkProcessing(context.Background(), other.ID)
	require.NoError(t, err)

	scoped, err := repo.Stats(context.Background(), builderID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Pending: 1}, scoped)

	all, err := repo.Stats(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Pending: 1, Processing: 1}, all)
}
