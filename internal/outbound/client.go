// Package outbound implements the Resilient Outbound Client: the only
// component permitted to speak HTTP to sibling services, with per-service
// timeout ceilings, bounded exponential-backoff retries for idempotent
// calls, and a circuit breaker per (service, instance).
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"aria/internal/config"
	"aria/internal/coreerr"
	"aria/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Service names the per-service timeout ceiling table keys on (§4.A).
type Service string

const (
	ServiceAuth          Service = "auth"
	ServiceMemorySearch  Service = "memory-search"
	ServiceLLMGenerate   Service = "llm-generate"
	ServiceLLMToken      Service = "llm-token"
	ServiceExpertExecute Service = "expert-execute"
	ServiceSiblingCRUD   Service = "sibling-crud"
)

// Request is one outbound call.
type Request struct {
	Service        Service
	Instance       string // host:port or logical instance name, keys the breaker
	Method         string
	URL            string
	Body           any
	Headers        map[string]string // extra headers, e.g. X-Session-ID for the Auth collaborator
	IdempotencyKey string            // non-empty allows retry of a mutating method
}

// Result is the status code and raw (undecoded) response body of a
// successful call.
type Result struct {
	StatusCode int
	Body       json.RawMessage
}

var nonRetryableStatus = map[int]bool{501: true, 505: true}

// Client is the Resilient Outbound Client.
type Client struct {
	http *http.Client

	mu       sync.Mutex
	breakers map[string]*circuitBreaker

	timeouts config.TimeoutConfig
	retry    config.RetryConfig
	breaker  config.CircuitBreakerConfig

	retryCounter metric.Int64Counter
	tripCounter  metric.Int64Counter
	initMetrics  sync.Once
}

// New builds a Resilient Outbound Client from configuration. Every sibling
// call carries the configured internal-service token (§6) so Lists,
// Calendar, Reminders, Journal, and HomeAssistant can distinguish core
// traffic from a stray client hitting them directly.
func New(cfg config.Config) *Client {
	httpClient := observability.NewHTTPClient(&http.Client{})
	if cfg.InternalServiceToken != "" {
		httpClient = observability.WithHeaders(httpClient, map[string]string{
			"X-Aria-Service-Token": cfg.InternalServiceToken,
		})
	}
	c := &Client{
		http:     httpClient,
		breakers: make(map[string]*circuitBreaker),
		timeouts: cfg.Timeouts,
		retry:    cfg.Retry,
		breaker:  cfg.Breaker,
	}
	c.setupMetrics()
	return c
}

func (c *Client) setupMetrics() {
	c.initMetrics.Do(func() {
		meter := otel.Meter("aria/outbound")
		c.retryCounter, _ = meter.Int64Counter("outbound.retries",
			metric.WithDescription("retries attempted against sibling services"))
		c.tripCounter, _ = meter.Int64Counter("outbound.circuit_trips",
			metric.WithDescription("circuit breaker trips to open"))
	})
}

func (c *Client) breakerFor(req Request) *circuitBreaker {
	key := string(req.Service) + "|" + req.Instance
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[key]
	if !ok {
		cb = newCircuitBreaker(c.breaker.Failures, c.breaker.Cooldown)
		c.breakers[key] = cb
	}
	return cb
}

func (c *Client) ceiling(service Service) time.Duration {
	switch service {
	case ServiceAuth:
		return c.timeouts.Auth
	case ServiceMemorySearch:
		return c.timeouts.MemorySearch
	case ServiceLLMGenerate:
		return c.timeouts.LLMGenerate
	case ServiceLLMToken:
		return c.timeouts.LLMFirstToken
	case ServiceExpertExecute:
		return c.timeouts.ExpertExecute
	default:
		return c.timeouts.SiblingCRUD
	}
}

func isIdempotent(req Request) bool {
	if req.IdempotencyKey != "" {
		return true
	}
	m := strings.ToUpper(req.Method)
	return m == http.MethodGet || m == http.MethodHead
}

// Call performs req against a sibling service honoring the timeout ceiling,
// the breaker for (service, instance), and retrying transient failures when
// the call is idempotent.
func (c *Client) Call(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otel.Tracer("aria/outbound").Start(ctx, "outbound.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("outbound.service", string(req.Service)),
		attribute.String("outbound.instance", req.Instance),
		attribute.String("outbound.method", req.Method),
	)

	cb := c.breakerFor(req)
	ceiling := c.ceiling(req.Service)
	retryable := isIdempotent(req)

	var lastErr error
	maxAttempts := 1
	if retryable {
		maxAttempts = c.retry.MaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !cb.allow() {
			return nil, coreerr.New(coreerr.CircuitOpen, fmt.Sprintf("circuit open for %s/%s", req.Service, req.Instance))
		}

		callCtx, cancel := context.WithTimeout(ctx, ceiling)
		res, err := c.doOnce(callCtx, req)
		cancel()

		if err == nil {
			cb.recordSuccess()
			return res, nil
		}
		lastErr = err
		cb.recordFailure()
		if c.tripCounter != nil && cb.isOpen() {
			c.tripCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("service", string(req.Service))))
		}

		if !retryable || !isTransient(err) {
			return nil, err
		}
		if attempt == maxAttempts-1 || ctx.Err() != nil {
			break
		}
		if c.retryCounter != nil {
			c.retryCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("service", string(req.Service))))
		}
		delay := backoff(c.retry.Base, c.retry.MaxBackoff, attempt)
		select {
		case <-ctx.Done():
			return nil, coreerr.Wrap(coreerr.Cancelled, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, req Request) (*Result, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Invalid, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, coreerr.Wrap(coreerr.Timeout, err)
		}
		return nil, coreerr.Wrap(coreerr.Unavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Unavailable, err)
	}

	if resp.StatusCode >= 500 && !nonRetryableStatus[resp.StatusCode] {
		return nil, coreerr.New(coreerr.Unavailable, fmt.Sprintf("%s returned %d", req.URL, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, coreerr.New(classifyClientError(resp.StatusCode), fmt.Sprintf("%s returned %d", req.URL, resp.StatusCode))
	}

	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}

func classifyClientError(status int) coreerr.Kind {
	switch status {
	case http.StatusUnauthorized:
		return coreerr.Unauthorized
	case http.StatusForbidden:
		return coreerr.Forbidden
	case http.StatusNotFound:
		return coreerr.NotFound
	case http.StatusConflict:
		return coreerr.Conflict
	default:
		return coreerr.Invalid
	}
}

// isTransient matches §4.A's retry eligibility: connect errors, timeouts,
// unavailable (5xx other than 501/505), and circuit-open are all transient;
// everything else (validation, not-found, conflict) is permanent.
func isTransient(err error) bool {
	switch coreerr.As(err) {
	case coreerr.Timeout, coreerr.Unavailable, coreerr.CircuitOpen:
		return true
	default:
		return false
	}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}
