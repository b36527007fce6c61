// Package memory implements the Episodic Memory Manager (§4.E): the
// absent → active → closed episode state machine, turn logging, optional
// LLM-backed summarization, and decay-weighted MemoryFact search. It is
// grounded on the teacher's agent/memory.Manager (store-backed history
// with rolling summaries) but replaces token-budget compaction with the
// spec's inactivity-timeout episode rotation.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aria/internal/coreerr"
	"aria/internal/observability"
	"aria/internal/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// summarizeAtMessageCount is the message-count crossing that triggers an
// automatic summary (§4.E).
const summarizeAtMessageCount = 20

// maxSummaryWords caps the LLM-produced summary length.
const maxSummaryWords = 300

// Completer is the narrow seam into the LLM Gateway that summarization
// needs. Defined locally (rather than importing internal/llm) so memory
// has no compile-time dependency on the gateway's provider/fallback
// machinery — only on the one operation it actually calls.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Manager implements get_or_open/append_turn/recent_turns/summarize/search.
type Manager struct {
	episodes  storage.EpisodeStore
	facts     storage.MemoryFactStore
	summarize Completer // optional; nil disables auto-summarization
	lock      *episodeLock
	timeouts  map[storage.ContextType]time.Duration
}

// New builds a Manager. rdb may be nil (local-dev, single replica);
// summarizer may be nil to disable §4.E's optional summarize step.
func New(episodes storage.EpisodeStore, facts storage.MemoryFactStore, summarizer Completer, rdb *redis.Client, timeouts map[storage.ContextType]time.Duration) *Manager {
	return &Manager{
		episodes:  episodes,
		facts:     facts,
		summarize: summarizer,
		lock:      newEpisodeLock(rdb),
		timeouts:  timeouts,
	}
}

func (m *Manager) lockKey(userID string, ct storage.ContextType) string {
	return userID + ":" + string(ct)
}

// GetOrOpen returns the episode_id for (user_id, context_type), atomically
// closing and reopening when the existing active episode has gone
// inactive past its timeout (§3 state machine).
func (m *Manager) GetOrOpen(ctx context.Context, userID string, contextType storage.ContextType) (string, error) {
	release, err := m.lock.acquire(ctx, m.lockKey(userID, contextType))
	if err != nil {
		return "", coreerr.Wrap(coreerr.Internal, err)
	}
	defer release()

	timeout := m.timeoutFor(contextType)
	now := time.Now().UTC()

	existing, err := m.episodes.ActiveByContext(ctx, userID, contextType)
	if err != nil {
		return "", coreerr.Wrap(coreerr.Internal, err)
	}

	if existing != nil {
		if now.Sub(existing.LastActivityAt) <= timeout {
			return existing.ID, nil
		}
		if err := m.closeLocked(ctx, existing); err != nil {
			return "", err
		}
	}

	ep := storage.Episode{
		ID:             uuid.NewString(),
		UserID:         userID,
		ContextType:    contextType,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         storage.EpisodeActive,
		TimeoutMinutes: int(timeout / time.Minute),
	}
	if err := m.episodes.Create(ctx, ep); err != nil {
		return "", coreerr.Wrap(coreerr.Internal, err)
	}
	return ep.ID, nil
}

// ActiveEpisode is a read-only lookup for status endpoints: unlike
// GetOrOpen it never rotates a timed-out episode or creates one.
func (m *Manager) ActiveEpisode(ctx context.Context, userID string, contextType storage.ContextType) (*storage.Episode, error) {
	ep, err := m.episodes.ActiveByContext(ctx, userID, contextType)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return ep, nil
}

func (m *Manager) timeoutFor(ct storage.ContextType) time.Duration {
	if d, ok := m.timeouts[ct]; ok && d > 0 {
		return d
	}
	return 30 * time.Minute
}

// closeLocked closes ep, triggering a best-effort summary first. Errors
// from summarization never block the close (summarize is optional, §4.E).
func (m *Manager) closeLocked(ctx context.Context, ep *storage.Episode) error {
	summary := ep.Summary
	if m.summarize != nil {
		if s, err := m.Summarize(ctx, ep.ID); err == nil && s != "" {
			summary = s
		}
	}
	if err := m.episodes.Close(ctx, ep.ID, summary); err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

// AppendTurn appends a Turn to episodeID, bumps message_count and
// last_activity_at, and triggers summarization when message_count crosses
// the §4.E threshold.
func (m *Manager) AppendTurn(ctx context.Context, userID string, contextType storage.ContextType, episodeID, userText, assistantText string) error {
	release, err := m.lock.acquire(ctx, m.lockKey(userID, contextType))
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	defer release()

	now := time.Now().UTC()
	if err := m.episodes.AppendTurn(ctx, storage.Turn{
		ID: uuid.NewString(), EpisodeID: episodeID, UserText: userText, AssistantText: assistantText, CreatedAt: now,
	}); err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}

	ep, err := m.episodes.Get(ctx, episodeID)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	if ep == nil {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	newCount := ep.MessageCount + 1
	if err := m.episodes.Touch(ctx, episodeID, now, newCount); err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}

	if m.summarize != nil && ep.MessageCount < summarizeAtMessageCount && newCount >= summarizeAtMessageCount {
		// Crossing the threshold mid-conversation only refreshes the
		// summary field; the episode stays active (§4.E — summarize is
		// triggered by the count crossing OR by close, not by the count
		// crossing itself closing the episode).
		if summary, serr := m.Summarize(ctx, episodeID); serr == nil && summary != "" {
			if err := m.episodes.UpdateSummary(ctx, episodeID, summary); err != nil {
				observability.LoggerWithTrace(ctx).Warn().Err(err).Str("episode_id", episodeID).Msg("failed to store mid-conversation summary")
			}
		} else if serr != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(serr).Str("episode_id", episodeID).Msg("episode summarization failed")
		}
	}
	return nil
}

// RecentTurns returns the newest-first, k-capped turn window (§4.E).
func (m *Manager) RecentTurns(ctx context.Context, episodeID string, k int) ([]storage.Turn, error) {
	if k <= 0 {
		k = 5
	}
	turns, err := m.episodes.RecentTurns(ctx, episodeID, k)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return turns, nil
}

// Summarize asks the LLM Gateway for a ≤300-word summary of the episode's
// full turn history. Exported so a background close path and an explicit
// admin/debug call can both use it.
func (m *Manager) Summarize(ctx context.Context, episodeID string) (string, error) {
	if m.summarize == nil {
		return "", nil
	}
	turns, err := m.episodes.RecentTurns(ctx, episodeID, 1<<20)
	if err != nil {
		return "", coreerr.Wrap(coreerr.Internal, err)
	}
	if len(turns) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Summarize the following conversation in 300 words or fewer. Be factual and concise.\n\n")
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.UserText, t.AssistantText)
	}

	summary, err := m.summarize.Complete(ctx, b.String())
	if err != nil {
		return "", coreerr.Wrap(coreerr.Unavailable, err)
	}
	return truncateWords(summary, maxSummaryWords), nil
}

func truncateWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ")
}

// Search delegates to the decay-weighted MemoryFact ranking defined in §3.
func (m *Manager) Search(ctx context.Context, userID, query string, limit int) ([]storage.MemoryFact, error) {
	facts, err := m.facts.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return facts, nil
}
