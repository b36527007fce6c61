// Package memory implements storage.* repositories entirely in process
// memory, mirroring the teacher's *_memory.go sibling-of-*_postgres.go
// convention. Used for tests and local-dev mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/google/uuid"
)

// EpisodeStore is an in-memory storage.EpisodeStore.
type EpisodeStore struct {
	mu       sync.RWMutex
	episodes map[string]storage.Episode
	turns    map[string][]storage.Turn
}

// NewEpisodeStore builds an empty in-memory EpisodeStore.
func NewEpisodeStore() *EpisodeStore {
	return &EpisodeStore{
		episodes: map[string]storage.Episode{},
		turns:    map[string][]storage.Turn{},
	}
}

func (s *EpisodeStore) ActiveByContext(ctx context.Context, userID string, contextType storage.ContextType) (*storage.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ep := range s.episodes {
		if ep.UserID == userID && ep.ContextType == contextType && ep.Status == storage.EpisodeActive {
			cp := ep
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *EpisodeStore) ActiveOlderThan(ctx context.Context, contextType storage.ContextType, cutoff time.Time) ([]storage.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Episode
	for _, ep := range s.episodes {
		if ep.ContextType == contextType && ep.Status == storage.EpisodeActive && ep.LastActivityAt.Before(cutoff) {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (s *EpisodeStore) Create(ctx context.Context, ep storage.Episode) error {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.episodes {
		if existing.UserID == ep.UserID && existing.ContextType == ep.ContextType && existing.Status == storage.EpisodeActive {
			return coreerr.New(coreerr.Conflict, "an active episode already exists for this user/context")
		}
	}
	s.episodes[ep.ID] = ep
	return nil
}

func (s *EpisodeStore) Touch(ctx context.Context, episodeID string, lastActivityAt time.Time, messageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if !ok {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	ep.LastActivityAt = lastActivityAt
	ep.MessageCount = messageCount
	s.episodes[episodeID] = ep
	return nil
}

func (s *EpisodeStore) UpdateSummary(ctx context.Context, episodeID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if !ok {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	ep.Summary = summary
	s.episodes[episodeID] = ep
	return nil
}

func (s *EpisodeStore) Close(ctx context.Context, episodeID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if !ok {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	ep.Status = storage.EpisodeClosed
	if summary != "" {
		ep.Summary = summary
	}
	s.episodes[episodeID] = ep
	return nil
}

func (s *EpisodeStore) Get(ctx context.Context, episodeID string) (*storage.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.episodes[episodeID]
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, "episode not found")
	}
	cp := ep
	return &cp, nil
}

func (s *EpisodeStore) AppendTurn(ctx context.Context, t storage.Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodes[t.EpisodeID]; !ok {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	s.turns[t.EpisodeID] = append(s.turns[t.EpisodeID], t)
	return nil
}

func (s *EpisodeStore) RecentTurns(ctx context.Context, episodeID string, k int) ([]storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.turns[episodeID]
	if k <= 0 || k > len(all) {
		k = len(all)
	}
	out := make([]storage.Turn, k)
	for i := 0; i < k; i++ {
		// newest-first
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

// MemoryFactStore is an in-memory storage.MemoryFactStore with decay-weighted
// search (§3).
type MemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string]storage.MemoryFact
}

func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{facts: map[string]storage.MemoryFact{}}
}

func (s *MemoryFactStore) Create(ctx context.Context, f storage.MemoryFact) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = f.CreatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[f.ID] = f
	return nil
}

func (s *MemoryFactStore) Search(ctx context.Context, userID string, query string, limit int) ([]storage.MemoryFact, error) {
	s.mu.RLock()
	var matches []storage.MemoryFact
	terms := storage.SearchTerms(query)
	for _, f := range s.facts {
		if f.UserID != userID {
			continue
		}
		if len(terms) > 0 && !anyTermMatches(f.Text, terms) {
			continue
		}
		matches = append(matches, f)
	}
	s.mu.RUnlock()

	storage.RankByDecay(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// anyTermMatches reports whether any keyword term appears in text (OR
// semantics, matching the Postgres-backed store's websearch_to_tsquery
// behavior).
func anyTermMatches(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func (s *MemoryFactStore) BumpAccess(ctx context.Context, factID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[factID]
	if !ok {
		return coreerr.New(coreerr.NotFound, "memory fact not found")
	}
	f.AccessCount++
	f.LastAccessedAt = at
	s.facts[factID] = f
	return nil
}

// ActionLogStore is an in-memory storage.ActionLogStore.
type ActionLogStore struct {
	mu   sync.RWMutex
	logs map[string][]storage.ActionLog // keyed by user_id
}

func NewActionLogStore() *ActionLogStore {
	return &ActionLogStore{logs: map[string][]storage.ActionLog{}}
}

func (s *ActionLogStore) Append(ctx context.Context, a storage.ActionLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[a.UserID] = append(s.logs[a.UserID], a)
	return nil
}

func (s *ActionLogStore) Recent(ctx context.Context, userID string, since time.Time) ([]storage.ActionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.ActionLog
	for _, a := range s.logs[userID] {
		if a.Timestamp.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// SatisfactionStore is an in-memory storage.SatisfactionStore.
type SatisfactionStore struct {
	mu           sync.RWMutex
	interactions map[string]storage.Interaction
	feedback     map[string][]storage.Feedback // keyed by interaction_id
}

func NewSatisfactionStore() *SatisfactionStore {
	return &SatisfactionStore{
		interactions: map[string]storage.Interaction{},
		feedback:     map[string][]storage.Feedback{},
	}
}

func (s *SatisfactionStore) RecordInteraction(ctx context.Context, i storage.Interaction) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[i.ID] = i
	return nil
}

func (s *SatisfactionStore) RecordFeedback(ctx context.Context, f storage.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interactions[f.InteractionID]; !ok {
		return coreerr.New(coreerr.NotFound, "interaction not found")
	}
	s.feedback[f.InteractionID] = append(s.feedback[f.InteractionID], f)
	return nil
}

func (s *SatisfactionStore) Interactions(ctx context.Context, userID string, limit int) ([]storage.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Interaction
	for _, i := range s.interactions {
		if i.UserID == userID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SatisfactionStore) FeedbackForInteraction(ctx context.Context, interactionID string) ([]storage.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Feedback, len(s.feedback[interactionID]))
	copy(out, s.feedback[interactionID])
	return out, nil
}

// ExpertDescriptorStore is an in-memory storage.ExpertDescriptorStore.
type ExpertDescriptorStore struct {
	mu    sync.RWMutex
	descs map[string]storage.ExpertDescriptor
}

func NewExpertDescriptorStore() *ExpertDescriptorStore {
	return &ExpertDescriptorStore{descs: map[string]storage.ExpertDescriptor{}}
}

func (s *ExpertDescriptorStore) List(ctx context.Context) ([]storage.ExpertDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.ExpertDescriptor, 0, len(s.descs))
	for _, d := range s.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *ExpertDescriptorStore) Upsert(ctx context.Context, d storage.ExpertDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descs[d.Name] = d
	return nil
}
