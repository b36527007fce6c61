package experts

import (
	"context"
	"regexp"
	"strings"
	"time"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/google/uuid"
)

// MemoryExpert handles notes/facts search & create against the shared
// MemoryFact store (§4.C, §3). Writes are idempotent by (user_id, text,
// subject_id) per §3's ownership note.
type MemoryExpert struct {
	facts storage.MemoryFactStore
}

func NewMemoryExpert(facts storage.MemoryFactStore) *MemoryExpert {
	return &MemoryExpert{facts: facts}
}

func (e *MemoryExpert) Name() string { return "memory" }

var rememberKeywords = regexp.MustCompile(`(?i)\bremember\b|\bdon't forget\b|\bwhat (?:kind of|do i)\b|\bwhat's my\b`)

func (e *MemoryExpert) CanHandle(query string, hints Hints) float64 {
	if rememberKeywords.MatchString(Sanitize(query)) {
		return 0.8
	}
	return 0
}

var rememberRe = regexp.MustCompile(`(?i)remember\s+that\s+(.+)`)

func (e *MemoryExpert) Execute(ctx context.Context, query string, tc TurnContext) ActionResult {
	q := Sanitize(query)

	if m := rememberRe.FindStringSubmatch(q); m != nil {
		text := strings.TrimSpace(m[1])
		if text == "" {
			return ActionResult{Success: false, Summary: "I need something to remember.", Error: coreerr.Invalid}
		}
		existing, err := e.facts.Search(ctx, tc.UserID, text, 1)
		if err == nil {
			for _, f := range existing {
				if strings.EqualFold(f.Text, text) {
					return ActionResult{Success: true, Summary: "I already remembered that.", CausedSideEffects: false}
				}
			}
		}
		now := time.Now().UTC()
		if err := e.facts.Create(ctx, storage.MemoryFact{
			ID: uuid.NewString(), UserID: tc.UserID, SubjectKind: storage.SubjectGeneral,
			Text: text, Importance: 5, CreatedAt: now, LastAccessedAt: now,
		}); err != nil {
			return ActionResult{Success: false, Summary: "I couldn't save that.", Error: coreerr.As(err)}
		}
		return ActionResult{Success: true, Summary: "I'll remember that " + text + ".", CausedSideEffects: true}
	}

	results, err := e.facts.Search(ctx, tc.UserID, q, 5)
	if err != nil {
		return ActionResult{Success: false, Summary: "I couldn't search your memory right now.", Error: coreerr.As(err)}
	}
	if len(results) == 0 {
		return ActionResult{Success: true, Summary: "I don't have anything relevant saved.", CausedSideEffects: false}
	}
	return ActionResult{Success: true, Summary: "I recall: " + results[0].Text, CausedSideEffects: false}
}
