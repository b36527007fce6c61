package llm

import (
	"context"
	"fmt"
	"net/http"

	"aria/internal/config"
	"aria/internal/llm/anthropic"
	"aria/internal/llm/google"
	"aria/internal/llm/openai"
)

// Build constructs a Provider for one LLMModelConfig entry, dispatching on
// its Provider field, grounded on the teacher's internal/llm/providers
// factory.Build(cfg, httpClient) switch.
func Build(ctx context.Context, cfg config.LLMModelConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Provider {
	case "", "openai", "local":
		return openai.New(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient), nil
	case "google":
		return google.New(ctx, cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
