package experts

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// PlanningExpert decomposes a stated goal into an ordered list of steps.
// It never causes side effects and never calls a downstream service (§4.C).
type PlanningExpert struct{}

func NewPlanningExpert() *PlanningExpert { return &PlanningExpert{} }

func (e *PlanningExpert) Name() string { return "planning" }

var planningKeywords = regexp.MustCompile(`(?i)\bplan\b|\bhow (?:do|should) i\b|\bhelp me (?:plan|organize)\b|\bbreak down\b`)

func (e *PlanningExpert) CanHandle(query string, hints Hints) float64 {
	if planningKeywords.MatchString(Sanitize(query)) {
		return 0.7
	}
	return 0
}

var planGoalRe = regexp.MustCompile(`(?i)plan\s+(?:for|to)?\s*(.+)`)

// Execute returns a deterministic, template-based decomposition of the
// goal into a handful of generic steps. It does not call an LLM — the
// orchestrator's Generate step is where free-form language happens; this
// expert only needs to produce a structured starting point fast enough
// to run inside the parallel dispatch window (§4.A).
func (e *PlanningExpert) Execute(ctx context.Context, query string, tc TurnContext) ActionResult {
	q := Sanitize(query)
	goal := q
	if m := planGoalRe.FindStringSubmatch(q); m != nil {
		goal = strings.TrimSpace(m[1])
	}
	goal = strings.TrimSuffix(goal, "?")
	if goal == "" {
		goal = "your goal"
	}

	steps := []string{
		fmt.Sprintf("Clarify what success looks like for %s.", goal),
		"Break the goal into two or three concrete milestones.",
		"Identify the first action you can take today.",
		"Set a checkpoint to review progress.",
	}
	summary := fmt.Sprintf("Here's a plan for %s: %s", goal, strings.Join(steps, " "))
	return ActionResult{Success: true, Summary: summary, CausedSideEffects: false}
}
