package experts

import (
	"context"
	"testing"
	"time"

	"aria/internal/storage"
	"aria/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryExpert(t *testing.T) *MemoryExpert {
	t.Helper()
	return NewMemoryExpert(memory.NewMemoryFactStore())
}

func allExperts(t *testing.T) []Expert {
	t.Helper()
	return []Expert{
		NewListExpert(nil, "http://lists"),
		NewCalendarExpert(nil, "http://calendar"),
		NewReminderExpert(nil, "http://reminders"),
		NewJournalExpert(nil, "http://journal"),
		newMemoryExpert(t),
		NewPlanningExpert(),
		NewHomeAssistantExpert(nil, "http://ha"),
		NewBirthdayExpert(nil, "http://calendar"),
	}
}

func TestRegistry_AllAndByName(t *testing.T) {
	experts := allExperts(t)
	reg := NewRegistry(experts...)

	require.Len(t, reg.All(), 8)

	e, ok := reg.ByName("planning")
	require.True(t, ok)
	assert.Equal(t, "planning", e.Name())

	_, ok = reg.ByName("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_All_ReturnsCopy(t *testing.T) {
	reg := NewRegistry(allExperts(t)...)
	got := reg.All()
	got[0] = nil
	assert.NotNil(t, reg.All()[0], "mutating the slice returned by All must not affect the registry")
}

func TestCanHandle_IsPureAndDeterministic(t *testing.T) {
	hints := Hints{Now: time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)}
	for _, e := range allExperts(t) {
		e := e
		t.Run(e.Name(), func(t *testing.T) {
			first := e.CanHandle("some unrelated query about nothing in particular", hints)
			second := e.CanHandle("some unrelated query about nothing in particular", hints)
			assert.Equal(t, first, second)
			assert.GreaterOrEqual(t, first, 0.0)
			assert.LessOrEqual(t, first, 1.0)
		})
	}
}

func TestListExpert_CanHandle(t *testing.T) {
	e := NewListExpert(nil, "http://lists")
	assert.Greater(t, e.CanHandle("add milk and eggs to my shopping list", Hints{}), 0.8)
	assert.Equal(t, 0.0, e.CanHandle("what's the weather", Hints{}))
}

func TestReminderExpert_CanHandle(t *testing.T) {
	e := NewReminderExpert(nil, "http://reminders")
	assert.Greater(t, e.CanHandle("remind me to call mom tomorrow at 9am", Hints{}), 0.8)
}

func TestHomeAssistantExpert_AmbiguousRoomRejected(t *testing.T) {
	e := NewHomeAssistantExpert(nil, "http://ha")
	result := e.Execute(context.Background(), "turn on the lights in the kitchen and living room", TurnContext{UserID: "u1"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestPlanningExpert_Execute_NoSideEffects(t *testing.T) {
	e := NewPlanningExpert()
	result := e.Execute(context.Background(), "help me plan a move to a new apartment", TurnContext{UserID: "u1"})
	assert.True(t, result.Success)
	assert.False(t, result.CausedSideEffects)
	assert.NotEmpty(t, result.Summary)
}

func TestMemoryExpert_RememberThenSearchFindsFact(t *testing.T) {
	store := memory.NewMemoryFactStore()
	e := NewMemoryExpert(store)
	tc := TurnContext{UserID: "u1"}

	remembered := e.Execute(context.Background(), "remember that my favorite color is blue", tc)
	require.True(t, remembered.Success)
	assert.True(t, remembered.CausedSideEffects)

	facts, err := store.Search(context.Background(), "u1", "favorite color", 5)
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	assert.Contains(t, facts[0].Text, "favorite color is blue")
}

func TestMemoryExpert_RememberIsIdempotent(t *testing.T) {
	store := memory.NewMemoryFactStore()
	e := NewMemoryExpert(store)
	tc := TurnContext{UserID: "u1"}

	e.Execute(context.Background(), "remember that my favorite color is blue", tc)
	second := e.Execute(context.Background(), "remember that my favorite color is blue", tc)

	require.True(t, second.Success)
	assert.False(t, second.CausedSideEffects, "re-remembering the same fact must not duplicate it")

	facts, err := store.Search(context.Background(), "u1", "favorite color", 10)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestBirthdayExpert_RequiresDate(t *testing.T) {
	e := NewBirthdayExpert(nil, "http://calendar")
	result := e.Execute(context.Background(), "it's Sam's birthday", TurnContext{UserID: "u1"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

var _ storage.MemoryFactStore = (*memory.MemoryFactStore)(nil)
