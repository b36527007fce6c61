// Package google adapts the Gemini SDK (google.golang.org/genai) to
// llm.Provider, grounded on the teacher's internal/llm/google/client.go but
// reduced to a single text-in/text-out GenerateContent call.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"aria/internal/coreerr"
	"aria/internal/llm"
	"aria/internal/observability"
)

// Client wraps a Gemini SDK client for one configured model.
type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, baseURL, apiKey, model string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if model = strings.TrimSpace(model); model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(baseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(apiKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string { return "google:" + c.model }

func (c *Client) Complete(ctx context.Context, prompt string, params llm.CompletionParams) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(params.MaxTokens),
		Temperature:     genai.Ptr(float32(params.Temperature)),
		StopSequences:   params.Stop,
	}
	if params.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(params.SystemPrompt, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("google_complete_error")
		return "", classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", coreerr.New(coreerr.Internal, "google: empty response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	log.Debug().Str("model", c.model).Dur("duration", dur).Msg("google_complete_ok")
	return sb.String(), nil
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return coreerr.Wrap(coreerr.Timeout, err)
	case strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "429") || strings.Contains(msg, "503"):
		return coreerr.Wrap(coreerr.Unavailable, err)
	default:
		return coreerr.Wrap(coreerr.Internal, err)
	}
}
