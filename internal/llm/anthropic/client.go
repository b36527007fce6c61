// Package anthropic adapts the Anthropic SDK to llm.Provider, grounded on
// the teacher's internal/llm/anthropic/client.go but stripped to a single
// prompt-in/string-out call: no tool-calling, no extended thinking, no
// multi-turn message history (the Orchestrator has already flattened the
// conversation into one prompt by the time it reaches here).
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"aria/internal/coreerr"
	"aria/internal/llm"
	"aria/internal/observability"
)

// Client wraps an Anthropic SDK client for one configured model.
type Client struct {
	sdk   anthropic.Client
	model string
}

// New builds a Client from an aria LLMModelConfig entry (BaseURL/APIKey/Model).
func New(baseURL, apiKey, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model = strings.TrimSpace(model); model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "anthropic:" + c.model }

func (c *Client) Complete(ctx context.Context, prompt string, params llm.CompletionParams) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	var system []anthropic.TextBlockParam
	if params.SystemPrompt != "" {
		system = []anthropic.TextBlockParam{{Text: params.SystemPrompt}}
	}

	msgParams := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		System:      system,
		MaxTokens:   int64(params.MaxTokens),
		Temperature: anthropic.Float(params.Temperature),
	}
	if len(params.Stop) > 0 {
		msgParams.StopSequences = params.Stop
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, msgParams)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_complete_error")
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	log.Debug().Str("model", c.model).Dur("duration", dur).Int("output_tokens", int(resp.Usage.OutputTokens)).Msg("anthropic_complete_ok")
	return sb.String(), nil
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return coreerr.Wrap(coreerr.Timeout, err)
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "529"):
		return coreerr.Wrap(coreerr.Unavailable, err)
	default:
		return coreerr.Wrap(coreerr.Internal, err)
	}
}
