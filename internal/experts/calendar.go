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

// CalendarExpert handles event CRUD (§4.C).
type CalendarExpert struct {
	downstream
}

func NewCalendarExpert(client *outbound.Client, baseURL string) *CalendarExpert {
	return &CalendarExpert{downstream{client: client, baseURL: baseURL}}
}

func (e *CalendarExpert) Name() string { return "calendar" }

var calendarKeywords = regexp.MustCompile(`(?i)\b(schedule|calendar|meeting|event|appointment)\b`)

func (e *CalendarExpert) CanHandle(query string, hints Hints) float64 {
	if calendarKeywords.MatchString(Sanitize(query)) {
		return 0.85
	}
	return 0
}

type calendarEventRequest struct {
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	StartTime string `json:"start_time,omitempty"`
}

func (e *CalendarExpert) Execute(ctx context.Context, query string, tc TurnContext) ActionResult {
	q := Sanitize(query)
	now := time.Now().UTC()

	date, clock, found := ResolveTimePhrase(q, now)
	if !found {
		clock = ""
	}

	title := extractEventTitle(q)
	if title == "" {
		return ActionResult{Success: false, Summary: "I need a title to schedule the event.", Error: coreerr.Invalid}
	}

	_, kind := e.call(ctx, http.MethodPost, "/api/calendar/events", calendarEventRequest{
		Title: title, StartDate: date, StartTime: clock,
	})
	if kind != "" {
		return ActionResult{Success: false, Summary: "I couldn't reach the calendar service.", Error: kind}
	}
	return ActionResult{Success: true, Summary: "Scheduled \"" + title + "\" on your calendar.", CausedSideEffects: true}
}

var eventTitleRe = regexp.MustCompile(`(?i)\b(?:schedule|add)\s+(?:a\s+)?(.+?)\s+(?:tomorrow|at|on|for)\b`)

func extractEventTitle(q string) string {
	if m := eventTitleRe.FindStringSubmatch(q); m != nil {
		return strings.TrimSpace(m[1])
	}
	lc := strings.ToLower(q)
	for _, kw := range []string{"schedule", "add"} {
		if idx := strings.Index(lc, kw); idx >= 0 {
			rest := strings.TrimSpace(q[idx+len(kw):])
			if rest != "" {
				return rest
			}
		}
	}
	return ""
}
