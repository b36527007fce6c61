package outbound

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aria/internal/config"
	"aria/internal/coreerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Timeouts: config.TimeoutConfig{
			Auth:          time.Second,
			MemorySearch:  time.Second,
			LLMGenerate:   time.Second,
			LLMFirstToken: time.Second,
			ExpertExecute: time.Second,
			SiblingCRUD:   time.Second,
		},
		Retry: config.RetryConfig{
			Base:        time.Millisecond,
			MaxBackoff:  5 * time.Millisecond,
			MaxAttempts: 3,
		},
		Breaker: config.CircuitBreakerConfig{
			Failures: 2,
			Cooldown: 20 * time.Millisecond,
		},
	}
}

func TestClient_RetriesIdempotentGetOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	// Every failed attempt counts toward the breaker; keep its threshold
	// above the two failures this test serves so the third attempt runs.
	cfg := testConfig()
	cfg.Breaker.Failures = 5
	c := New(cfg)
	res, err := c.Call(context.Background(), Request{
		Service:  ServiceSiblingCRUD,
		Instance: srv.URL,
		Method:   http.MethodGet,
		URL:      srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryMutatingCallWithoutIdempotencyKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(testConfig())
	_, err := c.Call(context.Background(), Request{
		Service:  ServiceSiblingCRUD,
		Instance: srv.URL,
		Method:   http.MethodPost,
		URL:      srv.URL,
		Body:     map[string]string{"x": "y"},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RetriesMutatingCallWithIdempotencyKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(testConfig())
	_, err := c.Call(context.Background(), Request{
		Service:        ServiceSiblingCRUD,
		Instance:       srv.URL,
		Method:         http.MethodPost,
		URL:            srv.URL,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_CircuitOpensAndFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	c := New(cfg)

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), Request{
			Service: ServiceSiblingCRUD, Instance: srv.URL, Method: http.MethodGet, URL: srv.URL,
		})
		require.Error(t, err)
	}

	_, err := c.Call(context.Background(), Request{
		Service: ServiceSiblingCRUD, Instance: srv.URL, Method: http.MethodGet, URL: srv.URL,
	})
	require.Error(t, err)
	assert.Equal(t, coreerr.CircuitOpen, coreerr.As(err))
}

func TestClient_NonTransientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig())
	_, err := c.Call(context.Background(), Request{
		Service: ServiceSiblingCRUD, Instance: srv.URL, Method: http.MethodGet, URL: srv.URL,
	})
	require.Error(t, err)
	assert.Equal(t, coreerr.NotFound, coreerr.As(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
