// Package experts implements the polymorphic Expert contract (§4.C) and the
// eight concrete experts shipped with the core.
package experts

import (
	"context"
	"encoding/json"
	"time"

	"aria/internal/coreerr"
)

// Hints carries cheap, deterministic context can_handle may use — never an
// I/O call, never the outbound client.
type Hints struct {
	Now      time.Time
	Location *time.Location
}

// TurnContext is the explicit value §9 prescribes in place of an ambient
// "current user"/"current request" global: every expert call takes one
// explicitly, carrying exactly what it needs and nothing stashed in
// process-global state.
type TurnContext struct {
	UserID        string
	SessionID     string
	Role          string
	CorrelationID string
}

// ActionResult is what Execute returns, win or lose (§4.C).
type ActionResult struct {
	Success           bool
	Summary           string
	Artifacts         []json.RawMessage
	CausedSideEffects bool
	Error             coreerr.Kind
}

// Expert is polymorphic over {can_handle, execute, name} (§4.C).
type Expert interface {
	Name() string
	// CanHandle must be deterministic, pure, and fast (<1ms): purely
	// pattern-based, no I/O.
	CanHandle(query string, hints Hints) float64
	Execute(ctx context.Context, query string, tc TurnContext) ActionResult
}

// Registry is the compile-time list of registered experts (§9: no dynamic
// plugin loading — a fixed list wired at process start).
type Registry struct {
	experts []Expert
}

// NewRegistry builds a Registry from a fixed expert list.
func NewRegistry(experts ...Expert) *Registry {
	return &Registry{experts: experts}
}

// All returns every registered expert, in registration order.
func (r *Registry) All() []Expert {
	out := make([]Expert, len(r.experts))
	copy(out, r.experts)
	return out
}

// ByName looks up one expert for the admin probe endpoint.
func (r *Registry) ByName(name string) (Expert, bool) {
	for _, e := range r.experts {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}
