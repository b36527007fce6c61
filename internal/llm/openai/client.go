// Package openai adapts the OpenAI SDK (also used for self-hosted
// OpenAI-compatible endpoints, per the teacher's isSelfHosted split) to
// llm.Provider, grounded on the teacher's internal/llm/openai/client.go but
// reduced to the single Chat Completions call this Provider needs.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"aria/internal/coreerr"
	"aria/internal/llm"
	"aria/internal/observability"
)

// Client wraps an OpenAI (or OpenAI-compatible) SDK client for one model.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client. baseURL is optional, pointing it at a self-hosted
// OpenAI-compatible endpoint instead of api.openai.com.
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
	return &Client{sdk: sdk.NewClient(opts...), model: strings.TrimSpace(model)}
}

func (c *Client) Name() string { return "openai:" + c.model }

func (c *Client) Complete(ctx context.Context, prompt string, params llm.CompletionParams) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if params.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(params.SystemPrompt))
	}
	messages = append(messages, sdk.UserMessage(prompt))

	reqParams := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   param.NewOpt(int64(params.MaxTokens)),
		Temperature: param.NewOpt(params.Temperature),
	}
	// Stop sequences are intentionally omitted: the SDK's stop-union field
	// shape isn't exercised anywhere in the example pack to ground against.

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, reqParams)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("openai_complete_error")
		return "", classify(err)
	}
	if len(comp.Choices) == 0 {
		return "", coreerr.New(coreerr.Internal, "openai: empty choices")
	}
	log.Debug().Str("model", c.model).Dur("duration", dur).Int("total_tokens", int(comp.Usage.TotalTokens)).Msg("openai_complete_ok")
	return comp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled"):
		return coreerr.Wrap(coreerr.Timeout, err)
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429") || strings.Contains(msg, "503"):
		return coreerr.Wrap(coreerr.Unavailable, err)
	default:
		return coreerr.Wrap(coreerr.Internal, err)
	}
}
