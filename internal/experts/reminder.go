package experts

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"aria/internal/coreerr"
	"aria/internal/outbound"
)

// ReminderExpert handles reminder creation/listing (§4.C).
type ReminderExpert struct {
	downstream
}

func NewReminderExpert(client *outbound.Client, baseURL string) *ReminderExpert {
	return &ReminderExpert{downstream{client: client, baseURL: baseURL}}
}

func (e *ReminderExpert) Name() string { return "reminder" }

var reminderKeywords = regexp.MustCompile(`(?i)\bremind(?:er)?\b`)

func (e *ReminderExpert) CanHandle(query string, hints Hints) float64 {
	if reminderKeywords.MatchString(Sanitize(query)) {
		return 0.9
	}
	return 0
}

type reminderRequest struct {
	Title        string `json:"title"`
	UserID       string `json:"user_id"`
	DueDate      string `json:"due_date"`
	DueTime      string `json:"due_time"`
	ReminderType string `json:"reminder_type"`
	Category     string `json:"category"`
	Priority     string `json:"priority"`
}

var reminderTitleRe = regexp.MustCompile(`(?i)remind(?:er)?\s+me\s+to\s+(.+?)(?:\s+(?:tomorrow|at|on)\b.*)?$`)

func (e *ReminderExpert) Execute(ctx context.Context, query string, tc TurnContext) ActionResult {
	q := Sanitize(query)
	now := time.Now().UTC()

	title := ""
	if m := reminderTitleRe.FindStringSubmatch(q); m != nil {
		title = strings.TrimSpace(m[1])
	}
	if title == "" {
		return ActionResult{Success: false, Summary: "I need to know what to remind you about.", Error: coreerr.Invalid}
	}

	date, clock, _ := ResolveTimePhrase(q, now)

	_, kind := e.call(ctx, http.MethodPost, "/api/reminders", reminderRequest{
		Title: title, UserID: tc.UserID, DueDate: date, DueTime: clock,
		ReminderType: "one_time", Category: "general", Priority: "normal",
	})
	if kind != "" {
		return ActionResult{Success: false, Summary: "I couldn't reach the reminders service.", Error: kind}
	}
	return ActionResult{Success: true, Summary: "I'll remind you to " + title + ".", CausedSideEffects: true}
}
