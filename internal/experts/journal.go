package experts

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"aria/internal/coreerr"
	"aria/internal/outbound"
)

// JournalExpert handles journal entry CRUD (§4.C).
type JournalExpert struct {
	downstream
}

func NewJournalExpert(client *outbound.Client, baseURL string) *JournalExpert {
	return &JournalExpert{downstream{client: client, baseURL: baseURL}}
}

func (e *JournalExpert) Name() string { return "journal" }

var journalKeywords = regexp.MustCompile(`(?i)\bjournal\b|\bdear diary\b`)

func (e *JournalExpert) CanHandle(query string, hints Hints) float64 {
	if journalKeywords.MatchString(Sanitize(query)) {
		return 0.85
	}
	return 0
}

type journalRequest struct {
	Content string `json:"content"`
}

var journalEntryRe = regexp.MustCompile(`(?i)journal\s*(?:entry)?\s*[:\-]?\s*(.+)`)

func (e *JournalExpert) Execute(ctx context.Context, query string, tc TurnContext) ActionResult {
	q := Sanitize(query)
	content := q
	if m := journalEntryRe.FindStringSubmatch(q); m != nil {
		content = strings.TrimSpace(m[1])
	}
	if content == "" {
		return ActionResult{Success: false, Summary: "I need some content for the journal entry.", Error: coreerr.Invalid}
	}

	_, kind := e.call(ctx, http.MethodPost, "/api/journal/", journalRequest{Content: content})
	if kind != "" {
		return ActionResult{Success: false, Summary: "I couldn't reach the journal service.", Error: kind}
	}
	return ActionResult{Success: true, Summary: "Added that to your journal.", CausedSideEffects: true}
}
