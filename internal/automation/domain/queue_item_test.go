package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingItem() *QueueItem {
	return NewQueueItem(uuid.New(), uuid.New(), uuid.New(), map[string]any{"lead_id": "42"}, 7)
}

func TestNewQueueItem(t *testing.T) {
	item := newPendingItem()

	assert.Equal(t, QueueStatusPending, item.Status)
	assert.Equal(t, 7, item.Priority)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, DefaultMaxAttempts, item.MaxAttempts)
	assert.WithinDuration(t, time.Now(), item.ScheduledFor, time.Second)
	assert.Nil(t, item.StartedAt)
	assert.Nil(t, item.ExecutionID)
}

func TestQueueItem_Lifecycle(t *testing.T) {
	item := newPendingItem()

	require.NoError(t, item.BeginProcessing(time.Now()))
	assert.Equal(t, QueueStatusProcessing, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.NotNil(t, item.StartedAt)

	executionID := uuid.New()
	require.NoError(t, item.Complete(executionID, time.Now()))
	assert.Equal(t, QueueStatusCompleted, item.Status)
	require.NotNil(t, item.ExecutionID)
	assert.Equal(t, executionID, *item.ExecutionID)
	assert.NotNil(t, item.CompletedAt)
}

func TestQueueItem_BeginProcessingRequiresPending(t *testing.T) {
	item := newPendingItem()
	require.NoError(t, item.BeginProcessing(time.Now()))

	assert.ErrorIs(t, item.BeginProcessing(time.Now()), ErrInvalidTransition)
}

func TestQueueItem_FailRetriesWithBackoff(t *testing.T) {
	item := newPendingItem()
	at := time.Now()
	require.NoError(t, item.BeginProcessing(at))

	retried, err := item.Fail("timeout", DefaultRetryBackoff, at)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.Equal(t, QueueStatusPending, item.Status)
	assert.Equal(t, "timeout", item.LastError)
	assert.WithinDuration(t, at.Add(DefaultRetryBackoff), item.ScheduledFor, time.Second)
}

func TestQueueItem_FailExhaustsBudget(t *testing.T) {
	item := newPendingItem()
	at := time.Now()

	for attempt := 1; attempt < DefaultMaxAttempts; attempt++ {
		require.NoError(t, item.BeginProcessing(at))
		retried, err := item.Fail("boom", 0, at)
		require.NoError(t, err)
		assert.True(t, retried)
	}

	require.NoError(t, item.BeginProcessing(at))
	retried, err := item.Fail("boom", 0, at)
	require.NoError(t, err)
	assert.False(t, retried)
	assert.Equal(t, QueueStatusFailed, item.Status)
	assert.Equal(t, DefaultMaxAttempts, item.Attempts)
	assert.NotNil(t, item.CompletedAt)
}

func TestQueueItem_ExhaustAttemptsMakesNextFailTerminal(t *testing.T) {
	item := newPendingItem()
	require.NoError(t, item.BeginProcessing(time.Now()))

	item.ExhaustAttempts()
	retried, err := item.Fail("automation deactivated", 0, time.Now())
	require.NoError(t, err)
	assert.False(t, retried)
	assert.Equal(t, QueueStatusFailed, item.Status)
	assert.Equal(t, item.MaxAttempts, item.Attempts)
	assert.Equal(t, "automation deactivated", item.LastError)
}

func TestQueueItem_CancelOnlyPending(t *testing.T) {
	item := newPendingItem()
	require.NoError(t, item.Cancel(time.Now()))
	assert.Equal(t, QueueStatusCancelled, item.Status)

	processing := newPendingItem()
	require.NoError(t, processing.BeginProcessing(time.Now()))
	assert.ErrorIs(t, processing.Cancel(time.Now()), ErrInvalidTransition)
}
