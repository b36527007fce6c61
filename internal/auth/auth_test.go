package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aria/internal/config"
	"aria/internal/coreerr"
	"aria/internal/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOutbound(handler http.HandlerFunc) (*outbound.Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	cfg := config.Config{
		Timeouts: config.TimeoutConfig{Auth: 2 * time.Second},
		Breaker:  config.CircuitBreakerConfig{Failures: 5, Cooldown: time.Second},
		Retry:    config.RetryConfig{Base: time.Millisecond, MaxBackoff: 10 * time.Millisecond, MaxAttempts: 2},
	}
	return outbound.New(cfg), srv
}

func TestValidate_LocalDevBypassOnMissingSession(t *testing.T) {
	client, srv := testOutbound(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("auth collaborator should not be called in bypass")
	})
	defer srv.Close()

	shim := New(client, srv.URL, true)
	sess, err := shim.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "default", sess.UserID)
	assert.True(t, sess.HasRole("admin"))
}

func TestValidate_MissingSessionUnauthorizedInProduction(t *testing.T) {
	client, srv := testOutbound(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("auth collaborator should not be called")
	})
	defer srv.Close()

	shim := New(client, srv.URL, false)
	_, err := shim.Validate(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, coreerr.Unauthorized, coreerr.As(err))
}

func TestValidate_ForwardsSessionHeaderAndParsesResponse(t *testing.T) {
	var gotHeader string
	client, srv := testOutbound(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(sessionHeader)
		w.Write([]byte(`{"user_id":"u1","role":"user","permissions":[]}`))
	})
	defer srv.Close()

	shim := New(client, srv.URL, false)
	sess, err := shim.Validate(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", gotHeader)
	assert.Equal(t, "u1", sess.UserID)
	assert.False(t, sess.HasRole("admin"))
}

func TestValidate_UnauthorizedOn401FromCollaborator(t *testing.T) {
	client, srv := testOutbound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	shim := New(client, srv.URL, false)
	_, err := shim.Validate(context.Background(), "bad-token")
	require.Error(t, err)
	assert.Equal(t, coreerr.Unauthorized, coreerr.As(err))
}

func TestRequireAdmin(t *testing.T) {
	require.NoError(t, RequireAdmin(Session{Role: "admin"}))
	require.NoError(t, RequireAdmin(Session{Role: "user", Permissions: []string{"admin"}}))
	err := RequireAdmin(Session{Role: "user"})
	require.Error(t, err)
	assert.Equal(t, coreerr.Forbidden, coreerr.As(err))
}
