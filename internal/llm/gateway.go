package llm

import (
	"context"
	"sync"
	"time"

	"aria/internal/coreerr"
	"aria/internal/observability"
)

const (
	generateDeadline = 30 * time.Second
	primaryCooldown  = 60 * time.Second
	warmupCap        = 30 * time.Second
)

// Token is one unit of a streamed completion (§4.G's "lazy sequence of
// string tokens"). Stream closes the channel on completion or error; Err is
// set only on the final Token when the stream aborted mid-flight.
type Token struct {
	Value string
	Done  bool
	Err   error
}

// Gateway implements the fallback chain over a configured provider list
// (§4.G): providers[0] is primary, the rest are fallbacks in order.
type Gateway struct {
	providers []Provider

	mu           sync.Mutex
	primaryUntil time.Time // primary is skipped while now < primaryUntil
}

func NewGateway(providers []Provider) *Gateway {
	return &Gateway{providers: providers}
}

// WarmUp issues one short completion against each configured model,
// capped at 30s total, per §4.G. Failures are logged but never fatal —
// the gateway still serves requests if warm-up times out or a model
// errors, since the fallback chain covers that at request time too.
func (g *Gateway) WarmUp(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, warmupCap)
	defer cancel()
	log := observability.LoggerWithTrace(ctx)

	var wg sync.WaitGroup
	for _, p := range g.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			_, err := p.Complete(ctx, "ping", ValidateParams(CompletionParams{MaxTokens: 8}))
			if err != nil {
				log.Warn().Err(err).Str("provider", p.Name()).Msg("llm_warmup_failed")
			}
		}(p)
	}
	wg.Wait()
}

// Complete walks the fallback chain (§4.G). Cancelled and Invalid are
// returned immediately without advancing the chain; Timeout, OOM-like
// (Unavailable) and any other unclassified error advance to the next
// provider.
func (g *Gateway) Complete(ctx context.Context, prompt string, params CompletionParams) (string, error) {
	if len(g.providers) == 0 {
		return "", coreerr.New(coreerr.Internal, "llm: no providers configured")
	}
	params = ValidateParams(params)
	ctx, cancel := context.WithTimeout(ctx, generateDeadline)
	defer cancel()
	log := observability.LoggerWithTrace(ctx)

	var lastErr error
	for i, p := range g.providers {
		if i == 0 && g.primaryOnCooldown() {
			log.Warn().Str("provider", p.Name()).Msg("llm_primary_cooldown_skip")
			continue
		}

		out, err := p.Complete(ctx, prompt, params)
		if err == nil {
			return out, nil
		}
		lastErr = err

		kind := coreerr.As(err)
		if kind == coreerr.Cancelled || kind == coreerr.Invalid {
			return "", err
		}
		if i == 0 && kind == coreerr.Unavailable {
			g.startPrimaryCooldown()
		}
		if kind != coreerr.Timeout && kind != coreerr.Unavailable {
			// Not a fallback-eligible error per §4.G; still try the next
			// provider rather than failing outright, since an unclassified
			// vendor error shouldn't strand the whole chain.
			continue
		}
		log.Warn().Err(err).Str("provider", p.Name()).Int("index", i).Msg("llm_fallback_advance")
	}
	if lastErr == nil {
		lastErr = coreerr.New(coreerr.Unavailable, "llm: no provider available")
	}
	return "", lastErr
}

// Stream runs one Complete call (so the whole fallback chain applies) and
// delivers its outcome as a single terminal Token: the full text on
// success, or the error. No partial tokens are emitted.
func (g *Gateway) Stream(ctx context.Context, prompt string, params CompletionParams) (<-chan Token, error) {
	// aria's Provider contract is complete-only; Stream is implemented here
	// as a single synchronous Complete call fanned into one terminal token,
	// since none of the configured vendor wrappers expose token-level
	// streaming through this simplified Provider interface (unlike the
	// teacher's llm.StreamHandler, which this package does not carry).
	out := make(chan Token, 1)
	go func() {
		defer close(out)
		text, err := g.Complete(ctx, prompt, params)
		if err != nil {
			out <- Token{Err: err, Done: true}
			return
		}
		out <- Token{Value: text, Done: true}
	}()
	return out, nil
}

func (g *Gateway) primaryOnCooldown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.primaryUntil)
}

func (g *Gateway) startPrimaryCooldown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primaryUntil = time.Now().Add(primaryCooldown)
}

// CompleteAdapter lets Gateway satisfy memory.Completer without importing
// internal/memory (and its episode-lock machinery) from this package.
type CompleteAdapter struct{ Gateway *Gateway }

func (a CompleteAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return a.Gateway.Complete(ctx, prompt, CompletionParams{MaxTokens: 300})
}
