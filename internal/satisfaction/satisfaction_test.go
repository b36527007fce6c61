package satisfaction

import (
	"context"
	"testing"
	"time"

	"aria/internal/storage"
	memstore "aria/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInteraction_WritesExactlyOne(t *testing.T) {
	store := memstore.NewSatisfactionStore()
	tracker := New(store)
	ctx := context.Background()

	interactionID := uuid.NewString()
	require.NoError(t, tracker.RecordInteraction(ctx, storage.Interaction{
		ID: interactionID, UserID: "u1", RequestText: "hi", ResponseText: "hello",
		ResponseTimeMs: 120, TaskCompleted: true, CreatedAt: time.Now().UTC(),
	}))

	got, err := store.Interactions(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStats_EmptyForNoInteractions(t *testing.T) {
	tracker := New(memstore.NewSatisfactionStore())
	stats, err := tracker.Stats(context.Background(), "ghost", 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestStats_AveragesRatingFeedback(t *testing.T) {
	store := memstore.NewSatisfactionStore()
	tracker := New(store)
	ctx := context.Background()

	for _, v := range []float64{1.0, 0.5} {
		id := uuid.NewString()
		require.NoError(t, store.RecordInteraction(ctx, storage.Interaction{
			ID: id, UserID: "u1", TaskCompleted: true, ResponseTimeMs: 100, CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, tracker.RecordFeedback(ctx, id, storage.FeedbackRating, v, "", storage.Feedback{
			ID: uuid.NewString(), UserID: "u1", CreatedAt: time.Now().UTC(),
		}))
	}

	stats, err := tracker.Stats(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 0.75, stats.AvgSatisfaction, 0.001)
	assert.Equal(t, 1.0, stats.TaskCompletionRate)
}

func TestStats_TaskCompletionRateAndFollowUp(t *testing.T) {
	store := memstore.NewSatisfactionStore()
	tracker := New(store)
	ctx := context.Background()

	require.NoError(t, store.RecordInteraction(ctx, storage.Interaction{
		ID: uuid.NewString(), UserID: "u1", TaskCompleted: true, FollowUpIn60s: true, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.RecordInteraction(ctx, storage.Interaction{
		ID: uuid.NewString(), UserID: "u1", TaskCompleted: false, FollowUpIn60s: false, CreatedAt: time.Now().UTC(),
	}))

	stats, err := tracker.Stats(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.5, stats.TaskCompletionRate)
	assert.Equal(t, 0.5, stats.FollowUpWithin60sPct)
}
