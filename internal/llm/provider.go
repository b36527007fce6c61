// Package llm implements the LLM Gateway (§4.G): a uniform Provider contract
// over the configured vendor SDKs, and a Gateway that walks a fallback chain
// of providers on timeout/overload, with a warm-up pass and a cool-down
// window on the primary after it OOMs.
//
// Expert dispatch and prompt composition happen upstream in the
// Orchestrator (§4.H) — by the time a prompt reaches this package it is
// already flattened to text, so Provider has no tool-calling or
// message-history shape, unlike the teacher's richer internal/llm.Provider.
package llm

import "context"

// CompletionParams carries the per-call generation knobs from spec §4.G's
// configuration list. Zero values are filled in by ValidateParams.
type CompletionParams struct {
	MaxTokens    int
	Temperature  float64
	Stop         []string
	SystemPrompt string
}

const (
	defaultMaxTokens = 512
	maxMaxTokens     = 4096
	defaultTemp      = 0.7
	minTemp          = 0.0
	maxTemp          = 2.0
)

// ValidateParams applies defaults and clamps out-of-range values per §4.G's
// configuration rules, rather than rejecting the call outright.
func ValidateParams(p CompletionParams) CompletionParams {
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.MaxTokens > maxMaxTokens {
		p.MaxTokens = maxMaxTokens
	}
	if p.Temperature == 0 {
		p.Temperature = defaultTemp
	}
	if p.Temperature < minTemp {
		p.Temperature = minTemp
	}
	if p.Temperature > maxTemp {
		p.Temperature = maxTemp
	}
	return p
}

// Provider is the uniform contract every vendor wrapper implements. Complete
// is the only operation the Gateway's fallback chain needs; Name identifies
// the provider in logs and warm-up reporting.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, params CompletionParams) (string, error)
}
