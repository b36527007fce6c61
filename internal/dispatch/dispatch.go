// Package dispatch implements the Expert Dispatcher (§4.D): deterministic
// scoring and selection of domain experts for a single turn, parallel
// execution bounded by per-expert and overall deadlines, and result
// aggregation into a DispatchResult the Orchestrator can compose a reply
// from.
package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"aria/internal/actionlog"
	"aria/internal/coreerr"
	"aria/internal/experts"
	"aria/internal/observability"
	"aria/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	thetaSelect    = 0.5
	thetaExclusive = 0.85
	exclusiveGap   = 0.15

	tAll  = 10 * time.Second
	tEach = 8 * time.Second
)

// ScoredResult pairs one expert's ActionResult with the score it was
// selected on, preserving the tie-break ordering from step 5.
type ScoredResult struct {
	ExpertName string
	Score      float64
	Result     experts.ActionResult
}

// Result is the outcome of one dispatch call.
type Result struct {
	Results         []ScoredResult
	ExecutedExperts []string
	Partial         bool
}

// Dispatcher scores and runs experts from a fixed, compile-time registry.
type Dispatcher struct {
	registry *experts.Registry
	logger   *actionlog.Logger
}

func New(registry *experts.Registry, logger *actionlog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

type candidate struct {
	expert experts.Expert
	score  float64
}

// Dispatch runs the algorithm from §4.D against every registered expert.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, hints experts.Hints, tc experts.TurnContext) Result {
	var candidates []candidate
	for _, e := range d.registry.All() {
		score := e.CanHandle(query, hints)
		if score >= thetaSelect {
			candidates = append(candidates, candidate{expert: e, score: score})
		}
	}
	if len(candidates) == 0 {
		return Result{}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].expert.Name() < candidates[j].expert.Name()
	})

	if len(candidates) > 1 && candidates[0].score >= thetaExclusive && candidates[1].score < thetaExclusive-exclusiveGap {
		candidates = candidates[:1]
	}

	return d.run(ctx, query, tc, candidates)
}

func (d *Dispatcher) run(ctx context.Context, query string, tc experts.TurnContext, candidates []candidate) Result {
	allCtx, cancel := context.WithTimeout(ctx, tAll)
	defer cancel()

	results := make([]ScoredResult, len(candidates))
	executed := make([]string, len(candidates))

	g, gCtx := errgroup.WithContext(allCtx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = ScoredResult{
				ExpertName: c.expert.Name(),
				Score:      c.score,
				Result:     d.executeOne(gCtx, c.expert, query, tc),
			}
			return nil
		})
	}
	_ = g.Wait() // executeOne never returns an error; only used for fan-out

	partial := false
	for i, c := range candidates {
		executed[i] = c.expert.Name()
		r := results[i].Result
		if r.Error == coreerr.Timeout || r.Error == coreerr.CircuitOpen {
			partial = true
		}
		d.writeActionLog(ctx, c.expert.Name(), query, tc, r)
	}

	return Result{Results: results, ExecutedExperts: executed, Partial: partial}
}

// executeOne runs a single expert under its own T_each sub-deadline and
// translates a deadline/cancellation into the ActionResult shape rather
// than propagating a bare context error, so one slow expert never fails
// the whole dispatch (§4.D's failure semantics).
func (d *Dispatcher) executeOne(ctx context.Context, e experts.Expert, query string, tc experts.TurnContext) (result experts.ActionResult) {
	eachCtx, cancel := context.WithTimeout(ctx, tEach)
	defer cancel()

	done := make(chan experts.ActionResult, 1)
	go func() {
		done <- e.Execute(eachCtx, query, tc)
	}()

	select {
	case result = <-done:
		return result
	case <-eachCtx.Done():
		kind := coreerr.Timeout
		if ctx.Err() == context.Canceled {
			kind = coreerr.Cancelled
		}
		return experts.ActionResult{Success: false, Summary: e.Name() + " did not finish in time.", Error: kind}
	}
}

func (d *Dispatcher) writeActionLog(ctx context.Context, expertName, query string, tc experts.TurnContext, r experts.ActionResult) {
	if d.logger == nil {
		return
	}
	params, _ := json.Marshal(struct {
		Query string `json:"query"`
	}{Query: query})
	turnCtx, _ := json.Marshal(struct {
		CorrelationID string `json:"correlation_id"`
		Error         string `json:"error,omitempty"`
	}{CorrelationID: tc.CorrelationID, Error: string(r.Error)})

	d.logger.Append(ctx, storage.ActionLog{
		ID:       uuid.NewString(),
		UserID:   tc.UserID,
		ToolName: expertName,
		// RedactJSON scrubs values under sensitive key names only; the
		// free text of the "query" field is stored as given.
		ToolParams: observability.RedactJSON(params),
		Success:    r.Success,
		Timestamp:  time.Now().UTC(),
		Context:    turnCtx,
		SessionID:  tc.SessionID,
	})
}

// FallbackSummary renders a one-line-per-expert template for when the LLM
// Gateway's Generate step itself fails and expert results must be shown
// without model composition (§4.H step 7 / DESIGN.md Open Question 3).
func FallbackSummary(results []ScoredResult) string {
	if len(results) == 0 {
		return ""
	}
	summary := ""
	for i, r := range results {
		if i > 0 {
			summary += "\n"
		}
		summary += r.Result.Summary
	}
	return summary
}
