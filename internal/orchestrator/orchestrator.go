// Package orchestrator implements the Chat Orchestrator (§4.H): the
// per-turn state machine Auth → OpenEpisode → Dispatch → Compose →
// Generate → Persist → Done, degrading to a static or partial-failure
// response rather than failing the HTTP call, grounded on the teacher's
// agentd chat handler (SSE writer shape, degrade-and-respond pattern) and
// orchestrator/handler.go (success/Degrade branch over one fallible
// pipeline).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"aria/internal/coreerr"
	"aria/internal/dispatch"
	"aria/internal/experts"
	"aria/internal/llm"
	"aria/internal/memory"
	"aria/internal/satisfaction"
	"aria/internal/storage"

	"github.com/google/uuid"
)

// promptBudgetChars is a coarse stand-in for a model's token context
// budget (§4.H step 4's truncation rule) — the core has no tokenizer of
// its own, so truncation works in characters, generously sized so it
// only ever trims runaway fact/turn history, never a normal turn.
const promptBudgetChars = 24000

const systemPreamble = `You are Aria, a personal assistant. Be concise and direct.
Refuse only requests that are illegal, harmful, or would violate someone's privacy.
Productivity and memory tasks (lists, reminders, calendar, journal, notes) are always safe to perform.`

// maxMessageBytes bounds a single turn's input (§8's boundary behavior:
// empty or >8KB messages are rejected before anything else runs).
const maxMessageBytes = 8 * 1024

// ClientSignals carries the optional implicit-feedback fields a /chat
// caller may include (§4.F's implicit-signal inputs).
type ClientSignals struct {
	TaskCompleted        bool
	FollowUpIn60s        bool
	EngagementDurationMs int64
}

// Request is one /chat or /chat/stream call.
type Request struct {
	UserID        string
	Message       string
	ContextType   storage.ContextType
	SessionID     string
	CorrelationID string
	ClientSignals ClientSignals
}

// Response is the non-streaming result (§6's POST /api/chat body).
type Response struct {
	Response        string
	ResponseTime    time.Duration
	InteractionID   string
	EpisodeID       string
	ExecutedExperts []string
	Partial         bool
}

// StreamEvent is one SSE payload (§4.H step 5).
type StreamEvent struct {
	Type            string   `json:"type"`
	Value           string   `json:"value,omitempty"`
	InteractionID   string   `json:"interaction_id,omitempty"`
	EpisodeID       string   `json:"episode_id,omitempty"`
	ExecutedExperts []string `json:"executed_experts,omitempty"`
	Partial         bool     `json:"partial,omitempty"`
	Kind            string   `json:"kind,omitempty"`
}

// Orchestrator wires every core component into the per-turn pipeline.
type Orchestrator struct {
	Memory       *memory.Manager
	Dispatcher   *dispatch.Dispatcher
	Gateway      *llm.Gateway
	Satisfaction *satisfaction.Tracker
}

func New(mem *memory.Manager, disp *dispatch.Dispatcher, gw *llm.Gateway, sat *satisfaction.Tracker) *Orchestrator {
	return &Orchestrator{Memory: mem, Dispatcher: disp, Gateway: gw, Satisfaction: sat}
}

type turnResult struct {
	episodeID       string
	executedExperts []string
	partial         bool
	responseText    string
	degraded        bool
	generateFailed  bool
}

// Complete runs the full Auth→...→Persist pipeline for a non-streaming
// call. auth has already happened by the time req reaches here (the HTTP
// layer resolves the session first, per §4.H step 1) — Complete starts at
// OpenEpisode.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	tr, err := o.run(ctx, req)
	if err != nil {
		return Response{}, err
	}

	dur := time.Since(start)
	interactionID := uuid.NewString()
	o.persist(ctx, req, tr, interactionID, dur)

	return Response{
		Response:        tr.responseText,
		ResponseTime:    dur,
		InteractionID:   interactionID,
		EpisodeID:       tr.episodeID,
		ExecutedExperts: tr.executedExperts,
		Partial:         tr.partial,
	}, nil
}

// Stream runs the same pipeline but emits token/end events on out as they
// become available (§4.H step 5). Since the Provider contract underneath
// only returns a complete string (llm.Gateway.Complete), "tokens"
// here are the response chunked on whitespace — real incremental
// generation is future work the Provider interface would need to grow
// into, noted in DESIGN.md.
func (o *Orchestrator) Stream(ctx context.Context, req Request, out chan<- StreamEvent) {
	defer close(out)
	start := time.Now()

	tr, err := o.run(ctx, req)
	if err != nil {
		kind := coreerr.As(err)
		out <- StreamEvent{Type: "error", Kind: string(kind)}
		out <- StreamEvent{Type: "end", Partial: true}
		return
	}

tokens:
	for _, word := range strings.Fields(tr.responseText) {
		select {
		case <-ctx.Done():
			break tokens
		case out <- StreamEvent{Type: "token", Value: word + " "}:
		}
	}

	dur := time.Since(start)
	interactionID := uuid.NewString()
	o.persist(ctx, req, tr, interactionID, dur)

	out <- StreamEvent{
		Type:            "end",
		InteractionID:   interactionID,
		EpisodeID:       tr.episodeID,
		ExecutedExperts: tr.executedExperts,
		Partial:         tr.partial,
	}
}

// run implements OpenEpisode→Dispatch→Compose→Generate→Degrade, shared by
// Complete and Stream; only Persist differs (buffered vs. mid-stream).
func (o *Orchestrator) run(ctx context.Context, req Request) (turnResult, error) {
	if len(req.Message) == 0 || len(req.Message) > maxMessageBytes {
		return turnResult{}, coreerr.New(coreerr.Invalid, "message must be 1-8192 bytes")
	}

	contextType := req.ContextType
	if contextType == "" {
		contextType = storage.ContextChat
	}

	episodeID, err := o.Memory.GetOrOpen(ctx, req.UserID, contextType)
	if err != nil {
		return turnResult{}, err
	}

	tc := experts.TurnContext{UserID: req.UserID, SessionID: req.SessionID, CorrelationID: req.CorrelationID}

	// Dispatch runs concurrently with memory search (§4.H step 3); both
	// must finish before Compose.
	var (
		dispatchResult dispatch.Result
		recentTurns    []storage.Turn
		facts          []storage.MemoryFact
		wg             sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		dispatchResult = o.Dispatcher.Dispatch(ctx, req.Message, experts.Hints{Now: time.Now().UTC()}, tc)
	}()
	go func() {
		defer wg.Done()
		recentTurns, _ = o.Memory.RecentTurns(ctx, episodeID, 5)
	}()
	go func() {
		defer wg.Done()
		facts, _ = o.Memory.Search(ctx, req.UserID, req.Message, 5)
	}()
	wg.Wait()

	prompt := compose(req.Message, recentTurns, facts, dispatchResult.Results)

	executed := dispatchResult.ExecutedExperts
	if executed == nil {
		executed = []string{}
	}

	text, genErr := o.Gateway.Complete(ctx, prompt, llm.CompletionParams{SystemPrompt: systemPreamble})

	tr := turnResult{
		episodeID:       episodeID,
		executedExperts: executed,
		partial:         dispatchResult.Partial,
	}

	switch {
	case genErr != nil:
		tr.generateFailed = true
		tr.responseText = degradeForGenerateFailure(dispatchResult.Results)
	case dispatchResult.Partial:
		tr.degraded = true
		tr.responseText = "I wasn't able to complete every part of that, but here's what I've got: " + text
	default:
		tr.responseText = text
	}

	return tr, nil
}

func (o *Orchestrator) persist(ctx context.Context, req Request, tr turnResult, interactionID string, dur time.Duration) {
	_ = o.Memory.AppendTurn(ctx, req.UserID, orContextType(req.ContextType), tr.episodeID, req.Message, tr.responseText)

	// §7: a degraded turn — whether from a Generate failure or a partial
	// dispatch — always persists task_completed=false (§8 scenario 5),
	// regardless of what the client's own signal claimed.
	taskCompleted := req.ClientSignals.TaskCompleted && !tr.generateFailed && !tr.partial
	_ = o.Satisfaction.RecordInteraction(ctx, storage.Interaction{
		ID:                   interactionID,
		UserID:               req.UserID,
		RequestText:          req.Message,
		ResponseText:         tr.responseText,
		ResponseTimeMs:       dur.Milliseconds(),
		TaskCompleted:        taskCompleted,
		FollowUpIn60s:        req.ClientSignals.FollowUpIn60s,
		EngagementDurationMs: req.ClientSignals.EngagementDurationMs,
		CreatedAt:            time.Now().UTC(),
	})
}

func orContextType(ct storage.ContextType) storage.ContextType {
	if ct == "" {
		return storage.ContextChat
	}
	return ct
}

// compose builds the fixed-order prompt from §4.H step 4, truncating the
// oldest non-essential section first (turns, then facts, then expert
// summaries) if the total exceeds promptBudgetChars. The system preamble
// and the current user message are never truncated.
func compose(message string, turns []storage.Turn, facts []storage.MemoryFact, results []dispatch.ScoredResult) string {
	storage.RankByDecay(facts)

	turnLines := make([]string, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- { // oldest first, newest last
		t := turns[i]
		turnLines = append(turnLines, fmt.Sprintf("User: %s\nAssistant: %s", t.UserText, t.AssistantText))
	}

	factLines := make([]string, 0, len(facts))
	for _, f := range facts {
		factLines = append(factLines, "- "+f.Text)
	}

	expertLines := make([]string, 0, len(results))
	for _, r := range results {
		if r.Result.Summary != "" {
			expertLines = append(expertLines, "- "+r.Result.Summary)
		}
	}

	sections := []string{
		systemPreamble,
		joinSection("Recent conversation:", turnLines),
		joinSection("Things I remember:", factLines),
		joinSection("Actions just taken:", expertLines),
		"User's current message: " + message,
	}

	budget := promptBudgetChars
	// essential = preamble + current message, counted first and never cut
	essential := len(sections[0]) + len(sections[len(sections)-1])
	remaining := budget - essential
	if remaining < 0 {
		remaining = 0
	}

	// truncate oldest non-essential first: turns, then facts, then expert
	// summaries, in that priority order.
	for i := 1; i <= 3 && totalLen(sections[1:4]) > remaining; i++ {
		sections[i] = ""
	}

	out := make([]string, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func totalLen(sections []string) int {
	n := 0
	for _, s := range sections {
		n += len(s)
	}
	return n
}

func joinSection(header string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(lines, "\n")
}

// degradeForGenerateFailure builds the static apology from §4.H step 7,
// naming what the dispatcher already accomplished.
func degradeForGenerateFailure(results []dispatch.ScoredResult) string {
	var done []string
	for _, r := range results {
		if r.Result.Success && r.Result.Summary != "" {
			done = append(done, r.Result.Summary)
		}
	}
	if len(done) == 0 {
		return "I couldn't form a full reply right now."
	}
	return strings.Join(done, " ") + ", but I couldn't form a full reply right now."
}
