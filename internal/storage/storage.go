// Package storage defines the core's owned entities and the narrow
// per-entity repositories that back them, following the teacher's
// interface-plus-Postgres/in-memory-pair convention
// (internal/persistence/databases).
package storage

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ContextType is the Episode's conversational domain.
type ContextType string

const (
	ContextChat        ContextType = "chat"
	ContextDevelopment ContextType = "development"
	ContextPlanning    ContextType = "planning"
	ContextGeneral     ContextType = "general"
)

// EpisodeStatus is the Episode state-machine position (§3).
type EpisodeStatus string

const (
	EpisodeActive EpisodeStatus = "active"
	EpisodeClosed EpisodeStatus = "closed"
)

// Episode is a bounded conversational window, unique per (user_id,
// context_type) while active.
type Episode struct {
	ID             string
	UserID         string
	ContextType    ContextType
	StartedAt      time.Time
	LastActivityAt time.Time
	Status         EpisodeStatus
	TimeoutMinutes int
	MessageCount   int
	Summary        string
}

// Turn is one user/assistant exchange, append-only within an Episode.
type Turn struct {
	ID            string
	EpisodeID     string
	UserText      string
	AssistantText string
	CreatedAt     time.Time
}

// SubjectKind classifies a MemoryFact's referent.
type SubjectKind string

const (
	SubjectPerson  SubjectKind = "person"
	SubjectProject SubjectKind = "project"
	SubjectGeneral SubjectKind = "general"
)

// MemoryFact is a long-term, searchable piece of knowledge (§3).
type MemoryFact struct {
	ID             string
	UserID         string
	SubjectKind    SubjectKind
	SubjectID      string
	Text           string
	Importance     float64
	Embedding      []float32
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
}

// ActionLog is an append-only record of one expert execution.
type ActionLog struct {
	ID         string
	UserID     string
	ToolName   string
	ToolParams json.RawMessage
	Success    bool
	Timestamp  time.Time
	Context    json.RawMessage
	SessionID  string
}

// Interaction is written exactly once per completed turn.
type Interaction struct {
	ID                   string
	UserID               string
	RequestText          string
	ResponseText         string
	ResponseTimeMs       int64
	TaskCompleted        bool
	FollowUpIn60s        bool
	EngagementDurationMs int64
	Context              json.RawMessage
	CreatedAt            time.Time
}

// FeedbackKind enumerates the kinds of satisfaction signal.
type FeedbackKind string

const (
	FeedbackRating   FeedbackKind = "rating"
	FeedbackThumbs   FeedbackKind = "thumbs"
	FeedbackText     FeedbackKind = "text"
	FeedbackImplicit FeedbackKind = "implicit"
)

// Feedback is zero or more per Interaction.
type Feedback struct {
	ID            string
	UserID        string
	InteractionID string
	Kind          FeedbackKind
	Value         float64
	Text          string
	CreatedAt     time.Time
}

// ExpertDescriptor is the static, admin-visible shape of one expert.
type ExpertDescriptor struct {
	Name              string
	Capabilities      []string
	PatternHints      []string
	DefaultConfidence float64
}

// EpisodeStore owns Episode rows plus their Turn children.
type EpisodeStore interface {
	// ActiveByContext returns the unique active episode for (user_id,
	// context_type), if any.
	ActiveByContext(ctx context.Context, userID string, contextType ContextType) (*Episode, error)
	// ActiveOlderThan lists active episodes of contextType whose
	// last_activity_at is before cutoff — the timeout sweeper's scan,
	// backed by the (status, last_activity_at) index.
	ActiveOlderThan(ctx context.Context, contextType ContextType, cutoff time.Time) ([]Episode, error)
	Create(ctx context.Context, ep Episode) error
	Touch(ctx context.Context, episodeID string, lastActivityAt time.Time, messageCount int) error
	// UpdateSummary stores an interim summary without changing Status —
	// used when message_count crosses the mid-conversation threshold
	// (§4.E) while the episode stays active.
	UpdateSummary(ctx context.Context, episodeID string, summary string) error
	Close(ctx context.Context, episodeID string, summary string) error
	Get(ctx context.Context, episodeID string) (*Episode, error)

	AppendTurn(ctx context.Context, t Turn) error
	RecentTurns(ctx context.Context, episodeID string, k int) ([]Turn, error)
}

// MemoryFactStore owns MemoryFact rows.
type MemoryFactStore interface {
	Create(ctx context.Context, f MemoryFact) error
	Search(ctx context.Context, userID string, query string, limit int) ([]MemoryFact, error)
	BumpAccess(ctx context.Context, factID string, at time.Time) error
}

// ActionLogStore owns ActionLog rows.
type ActionLogStore interface {
	Append(ctx context.Context, a ActionLog) error
	Recent(ctx context.Context, userID string, since time.Time) ([]ActionLog, error)
}

// SatisfactionStore owns Interaction and Feedback rows.
type SatisfactionStore interface {
	RecordInteraction(ctx context.Context, i Interaction) error
	RecordFeedback(ctx context.Context, f Feedback) error
	Interactions(ctx context.Context, userID string, limit int) ([]Interaction, error)
	FeedbackForInteraction(ctx context.Context, interactionID string) ([]Feedback, error)
}

// ExpertDescriptorStore owns the static expert catalog, seeded at startup
// from cmd/ariad's defaultExpertCatalog (§9).
type ExpertDescriptorStore interface {
	List(ctx context.Context) ([]ExpertDescriptor, error)
	Upsert(ctx context.Context, d ExpertDescriptor) error
}

// FactHalflifeDays is the decay halflife from §3; spec fixes it at 30 days
// and flags it as a product-tunable constant, not an engineering one.
const FactHalflifeDays = 30.0

// DecayScore implements §3's ranking: score = base_relevance *
// exp(-age_days/H) * (1 + log(1 + access_count)).
func DecayScore(f MemoryFact, now time.Time) float64 {
	ageDays := now.Sub(f.CreatedAt).Hours() / 24
	base := f.Importance
	if base <= 0 {
		base = 1
	}
	decay := math.Exp(-ageDays / FactHalflifeDays)
	return base * decay * (1 + math.Log(1+float64(f.AccessCount)))
}

// RankByDecay sorts facts by DecayScore, highest first, in place.
func RankByDecay(facts []MemoryFact) {
	now := time.Now().UTC()
	sort.Slice(facts, func(i, j int) bool {
		return DecayScore(facts[i], now) > DecayScore(facts[j], now)
	})
}

// searchStopwords holds the question/filler words common in recall phrasing
// ("what kind of X do I like?") that would otherwise swamp an OR match with
// hits unrelated to what the caller is actually asking about.
var searchStopwords = map[string]bool{
	"what": true, "which": true, "kind": true, "sort": true, "type": true,
	"the": true, "does": true, "do": true, "did": true, "is": true, "are": true,
	"was": true, "were": true, "like": true, "about": true, "have": true,
	"has": true, "for": true, "and": true, "that": true, "this": true,
	"with": true, "you": true, "your": true,
}

// SearchTerms tokenizes a recall query into lowercased keyword terms,
// dropping stopwords and very short tokens, for OR-based relevance
// matching (§3/§8: a query like "What kind of milk do I like?" must recall
// a fact stored as "I prefer oat milk" even though neither is a substring
// of the other). Shared by the in-memory and Postgres MemoryFactStores so
// both backends apply the same relevance notion.
func SearchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) < 3 || searchStopwords[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}
