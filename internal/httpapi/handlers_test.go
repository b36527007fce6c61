package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aria/internal/actionlog"
	"aria/internal/auth"
	"aria/internal/config"
	"aria/internal/dispatch"
	"aria/internal/experts"
	"aria/internal/llm"
	"aria/internal/memory"
	"aria/internal/orchestrator"
	"aria/internal/outbound"
	"aria/internal/satisfaction"
	"aria/internal/storage"
	memstore "aria/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ text string }

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, prompt string, params llm.CompletionParams) (string, error) {
	return f.text, nil
}

type fakeExpert struct {
	name   string
	score  float64
	result experts.ActionResult
}

func (f *fakeExpert) Name() string                                        { return f.name }
func (f *fakeExpert) CanHandle(query string, hints experts.Hints) float64 { return f.score }
func (f *fakeExpert) Execute(ctx context.Context, query string, tc experts.TurnContext) experts.ActionResult {
	return f.result
}

func newTestServer(t *testing.T, localDev bool, authHandler http.HandlerFunc) *Server {
	t.Helper()

	episodes := memstore.NewEpisodeStore()
	facts := memstore.NewMemoryFactStore()
	mem := memory.New(episodes, facts, nil, nil, map[storage.ContextType]time.Duration{
		storage.ContextChat: 30 * time.Minute,
	})

	registry := experts.NewRegistry(&fakeExpert{name: "list", score: 0.9, result: experts.ActionResult{Success: true, Summary: "Added milk"}})
	logger := actionlog.New(memstore.NewActionLogStore(), nil)
	t.Cleanup(logger.Close)
	disp := dispatch.New(registry, logger)

	gw := llm.NewGateway([]llm.Provider{&fakeProvider{text: "ok"}})
	sat := satisfaction.New(memstore.NewSatisfactionStore())
	orch := orchestrator.New(mem, disp, gw, sat)

	var authSrv *httptest.Server
	if authHandler != nil {
		authSrv = httptest.NewServer(authHandler)
		t.Cleanup(authSrv.Close)
	}
	authURL := ""
	if authSrv != nil {
		authURL = authSrv.URL
	}
	obClient := outbound.New(config.Config{
		Timeouts: config.TimeoutConfig{Auth: 2 * time.Second},
		Breaker:  config.CircuitBreakerConfig{Failures: 5, Cooldown: time.Second},
		Retry:    config.RetryConfig{Base: time.Millisecond, MaxBackoff: 10 * time.Millisecond, MaxAttempts: 2},
	})
	shim := auth.New(obClient, authURL, localDev)

	descs := memstore.NewExpertDescriptorStore()
	_ = descs.Upsert(context.Background(), storage.ExpertDescriptor{Name: "list", Capabilities: []string{"add"}, DefaultConfidence: 0.9})

	return New(orch, shim, mem, sat, registry, descs, disp, localDev)
}

func TestHandleChat_LocalDevBypassHappyPath(t *testing.T) {
	s := newTestServer(t, true, nil)

	body, _ := json.Marshal(map[string]any{"message": "add milk to my list"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Response)
	assert.NotEmpty(t, resp.EpisodeID)
	assert.Contains(t, resp.ExecutedExperts, "list")
}

func TestHandleChat_MissingSessionUnauthorizedInProduction(t *testing.T) {
	s := newTestServer(t, false, nil)

	body, _ := json.Marshal(map[string]any{"message": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "unauthorized", env.Error)
	assert.NotEmpty(t, env.RequestID)
}

func TestHandleChat_RejectsEmptyMessageAsInvalid(t *testing.T) {
	s := newTestServer(t, true, nil)

	body, _ := json.Marshal(map[string]any{"message": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatStream_EmitsSSEFrames(t *testing.T) {
	s := newTestServer(t, true, nil)

	body, _ := json.Marshal(map[string]any{"message": "hello there"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "data: ")
	assert.Contains(t, w.Body.String(), `"type":"end"`)
}

func TestHandleChatStatus_ReportsNoActiveEpisodeInitially(t *testing.T) {
	s := newTestServer(t, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/status", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.ActiveEpisode)
}

func TestHandleFeedback_RecordsThumbsValue(t *testing.T) {
	s := newTestServer(t, true, nil)

	body, _ := json.Marshal(map[string]any{"kind": "thumbs", "value": true})
	req := httptest.NewRequest(http.MethodPost, "/api/feedback/interaction-1", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListExperts_AdminOnly(t *testing.T) {
	s := newTestServer(t, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/experts", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]expertDescriptorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp["experts"], 1)
	assert.Equal(t, "list", resp["experts"][0].Name)
}

func TestHandleProbeExpert_ReturnsScoreWithoutExecuting(t *testing.T) {
	s := newTestServer(t, true, nil)

	body, _ := json.Marshal(map[string]any{"query": "add milk"})
	req := httptest.NewRequest(http.MethodPost, "/api/experts/list/probe", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp probeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Name)
	assert.Equal(t, 0.9, resp.Score)
}

func TestHandleProbeExpert_UnknownExpertIsNotFound(t *testing.T) {
	s := newTestServer(t, true, nil)

	body, _ := json.Marshal(map[string]any{"query": "anything"})
	req := httptest.NewRequest(http.MethodPost, "/api/experts/does-not-exist/probe", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
