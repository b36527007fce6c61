package experts

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"aria/internal/coreerr"
	"aria/internal/outbound"
)

// ListExpert handles shopping/todo list CRUD (§4.C).
type ListExpert struct {
	downstream
}

// NewListExpert builds the list expert against the lists router base URL.
func NewListExpert(client *outbound.Client, baseURL string) *ListExpert {
	return &ListExpert{downstream{client: client, baseURL: baseURL}}
}

func (e *ListExpert) Name() string { return "list" }

var listKeywords = regexp.MustCompile(`(?i)\b(add|put|buy)\b.*\b(to|on)\b.*\blist\b|\bshopping list\b|\btodo list\b`)

func (e *ListExpert) CanHandle(query string, hints Hints) float64 {
	q := Sanitize(query)
	if listKeywords.MatchString(q) {
		return 0.9
	}
	if strings.Contains(strings.ToLower(q), "list") {
		return 0.4
	}
	return 0
}

type listAddRequest struct {
	Text     string `json:"text"`
	Quantity int    `json:"quantity,omitempty"`
}

// Execute extracts one or more items and posts each to the lists router.
// Multiple items joined by "and"/commas are split so the dispatcher's
// end-to-end "shopping add" scenario (§8 scenario 1) posts one call per
// item.
func (e *ListExpert) Execute(ctx context.Context, query string, tc TurnContext) ActionResult {
	q := Sanitize(query)
	items := extractListItems(q)
	if len(items) == 0 {
		return ActionResult{Success: false, Summary: "I couldn't tell what to add to the list.", Error: coreerr.Invalid}
	}

	var added []string
	var anyFailed bool
	var lastKind coreerr.Kind
	for _, item := range items {
		_, kind := e.call(ctx, http.MethodPost, "/api/lists/shopping/items", listAddRequest{Text: item})
		if kind != "" {
			anyFailed = true
			lastKind = kind
			continue
		}
		added = append(added, item)
	}

	if len(added) == 0 {
		return ActionResult{Success: false, Summary: "I couldn't reach the shopping list right now.", Error: lastKind}
	}
	summary := "Added " + strings.Join(added, " and ") + " to your shopping list."
	result := ActionResult{Success: true, Summary: summary, CausedSideEffects: true}
	if anyFailed {
		result.Error = lastKind
	}
	return result
}

var listSplit = regexp.MustCompile(`(?i)\s*(?:,|\band\b)\s*`)

// extractListItems pulls the item list out of a phrase like "add milk and
// eggs to my shopping list".
func extractListItems(q string) []string {
	lc := strings.ToLower(q)
	idx := strings.Index(lc, "list")
	phrase := q
	if m := regexp.MustCompile(`(?i)\b(?:add|put|buy)\b\s+(.*?)\s+(?:to|on)\s+(?:my\s+)?(?:shopping|todo)?\s*list\b`).FindStringSubmatch(q); m != nil {
		phrase = m[1]
	} else if idx >= 0 {
		phrase = q[:idx]
	}
	var out []string
	for _, part := range listSplit.Split(phrase, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
