package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"aria/internal/actionlog"
	"aria/internal/coreerr"
	"aria/internal/dispatch"
	"aria/internal/experts"
	"aria/internal/llm"
	"aria/internal/memory"
	"aria/internal/satisfaction"
	"aria/internal/storage"
	memstore "aria/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpert struct {
	name   string
	score  float64
	result experts.ActionResult
}

func (f *fakeExpert) Name() string { return f.name }
func (f *fakeExpert) CanHandle(query string, hints experts.Hints) float64 {
	return f.score
}
func (f *fakeExpert) Execute(ctx context.Context, query string, tc experts.TurnContext) experts.ActionResult {
	return f.result
}

type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, prompt string, params llm.CompletionParams) (string, error) {
	return f.text, f.err
}

type fakeCompleter struct{}

func (fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) { return "", nil }

func newTestOrchestrator(t *testing.T, expertList []experts.Expert, providerText string, providerErr error) *Orchestrator {
	t.Helper()
	episodes := memstore.NewEpisodeStore()
	facts := memstore.NewMemoryFactStore()
	mem := memory.New(episodes, facts, fakeCompleter{}, nil, map[storage.ContextType]time.Duration{
		storage.ContextChat: 30 * time.Minute,
	})

	registry := experts.NewRegistry(expertList...)
	logger := actionlog.New(memstore.NewActionLogStore(), nil)
	t.Cleanup(logger.Close)
	disp := dispatch.New(registry, logger)

	gw := llm.NewGateway([]llm.Provider{&fakeProvider{text: providerText, err: providerErr}})
	sat := satisfaction.New(memstore.NewSatisfactionStore())

	return New(mem, disp, gw, sat)
}

func TestComplete_HappyPath(t *testing.T) {
	expert := &fakeExpert{name: "list", score: 0.9, result: experts.ActionResult{Success: true, Summary: "Added milk to your list"}}
	o := newTestOrchestrator(t, []experts.Expert{expert}, "Sure, I added milk.", nil)

	resp, err := o.Complete(context.Background(), Request{UserID: "u1", Message: "add milk to my list"})
	require.NoError(t, err)
	assert.Equal(t, "Sure, I added milk.", resp.Response)
	assert.NotEmpty(t, resp.EpisodeID)
	assert.NotEmpty(t, resp.InteractionID)
	assert.Contains(t, resp.ExecutedExperts, "list")
	assert.False(t, resp.Partial)
}

func TestComplete_GenerateFailureDegradesWithApology(t *testing.T) {
	expert := &fakeExpert{name: "list", score: 0.9, result: experts.ActionResult{Success: true, Summary: "Added milk to your list"}}
	o := newTestOrchestrator(t, []experts.Expert{expert}, "", coreerr.Wrap(coreerr.Unavailable, errors.New("llm down")))

	resp, err := o.Complete(context.Background(), Request{UserID: "u1", Message: "add milk"})
	require.NoError(t, err)
	assert.Contains(t, resp.Response, "Added milk to your list")
	assert.Contains(t, resp.Response, "couldn't form a full reply")
}

func TestComplete_NoExpertSuccessGenerateFailureIsBareApology(t *testing.T) {
	o := newTestOrchestrator(t, nil, "", coreerr.Wrap(coreerr.Unavailable, errors.New("llm down")))

	resp, err := o.Complete(context.Background(), Request{UserID: "u1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "I couldn't form a full reply right now.", resp.Response)
}

func TestComplete_PersistsExactlyOneInteraction(t *testing.T) {
	o := newTestOrchestrator(t, nil, "hi there", nil)

	_, err := o.Complete(context.Background(), Request{UserID: "u1", Message: "hello"})
	require.NoError(t, err)

	stats, err := o.Satisfaction.Stats(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestComplete_IsolatesEpisodesByUser(t *testing.T) {
	o := newTestOrchestrator(t, nil, "hi", nil)

	r1, err := o.Complete(context.Background(), Request{UserID: "u1", Message: "hello"})
	require.NoError(t, err)
	r2, err := o.Complete(context.Background(), Request{UserID: "u2", Message: "hello"})
	require.NoError(t, err)
	assert.NotEqual(t, r1.EpisodeID, r2.EpisodeID)
}

func TestStream_EmitsTokensThenEnd(t *testing.T) {
	o := newTestOrchestrator(t, nil, "hello world", nil)

	out := make(chan StreamEvent, 32)
	o.Stream(context.Background(), Request{UserID: "u1", Message: "hi"}, out)

	var events []StreamEvent
	for ev := range out {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "end", last.Type)
	assert.NotEmpty(t, last.InteractionID)

	var tokenCount int
	for _, ev := range events {
		if ev.Type == "token" {
			tokenCount++
		}
	}
	assert.Equal(t, 2, tokenCount)
}

func TestStream_GenerateFailureStillPersistsAndEnds(t *testing.T) {
	o := newTestOrchestrator(t, nil, "", coreerr.Wrap(coreerr.Unavailable, errors.New("down")))

	out := make(chan StreamEvent, 32)
	o.Stream(context.Background(), Request{UserID: "u1", Message: "hi"}, out)

	var events []StreamEvent
	for ev := range out {
		events = append(events, ev)
	}
	last := events[len(events)-1]
	assert.Equal(t, "end", last.Type)

	stats, err := o.Satisfaction.Stats(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestComplete_RejectsEmptyMessage(t *testing.T) {
	o := newTestOrchestrator(t, nil, "hi", nil)
	_, err := o.Complete(context.Background(), Request{UserID: "u1", Message: ""})
	require.Error(t, err)
	assert.Equal(t, coreerr.Invalid, coreerr.As(err))
}

func TestComplete_RejectsOversizeMessage(t *testing.T) {
	o := newTestOrchestrator(t, nil, "hi", nil)
	_, err := o.Complete(context.Background(), Request{UserID: "u1", Message: stringsRepeat("x", 8193)})
	require.Error(t, err)
	assert.Equal(t, coreerr.Invalid, coreerr.As(err))
}

func TestCompose_TruncatesOldestSectionsFirstWhenOverBudget(t *testing.T) {
	var longTurns []storage.Turn
	for i := 0; i < 100; i++ {
		longTurns = append(longTurns, storage.Turn{UserText: stringsRepeat("x", 500), AssistantText: stringsRepeat("y", 500)})
	}
	prompt := compose("current message", longTurns, nil, nil)
	assert.Contains(t, prompt, "current message")
	assert.Contains(t, prompt, systemPreamble)
	assert.Less(t, len(prompt), promptBudgetChars+len(systemPreamble)+200)
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
