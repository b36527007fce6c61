// Package auth implements the Session/Authorization Shim (§4.I): a thin
// adapter over the external Auth collaborator reached through the
// Resilient Outbound Client, plus a local-dev bypass to a single `default`
// user. Adapted from the teacher's auth types and middleware
// (internal/auth/types.go, middleware.go), but the resolved Session is
// passed explicitly rather than carried in context, generalized from a
// Postgres-backed identity provider to a pure validator over an already
// external system.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"aria/internal/coreerr"
	"aria/internal/outbound"
)

// Session is what validate(session_token) resolves to (§4.I).
type Session struct {
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasRole reports whether role is the session's primary role or named
// among its permissions — the admin check spec §4.I describes as
// `role == admin` or `admin` in `permissions`.
func (s Session) HasRole(role string) bool {
	if strings.EqualFold(s.Role, role) {
		return true
	}
	for _, p := range s.Permissions {
		if strings.EqualFold(p, role) {
			return true
		}
	}
	return false
}

const sessionHeader = "X-Session-ID"

// defaultUser is the single local-dev bypass identity (§4.H step 1, §6).
var defaultUser = Session{UserID: "default", Role: "admin", Permissions: []string{"admin"}}

// Shim validates session tokens against the external Auth collaborator.
type Shim struct {
	client       *outbound.Client
	authURL      string
	localDevMode bool
}

func New(client *outbound.Client, authURL string, localDevMode bool) *Shim {
	return &Shim{client: client, authURL: strings.TrimSuffix(authURL, "/"), localDevMode: localDevMode}
}

// Validate resolves an X-Session-ID header value into a Session, per
// §4.I/§6's `GET /api/auth/user` contract. A missing token falls back to
// the local-dev default user only when localDevMode is set; otherwise it
// is Unauthorized.
func (s *Shim) Validate(ctx context.Context, sessionID string) (Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		if s.localDevMode {
			return defaultUser, nil
		}
		return Session{}, coreerr.New(coreerr.Unauthorized, "missing X-Session-ID")
	}

	res, err := s.client.Call(ctx, outbound.Request{
		Service:  outbound.ServiceAuth,
		Instance: s.authURL,
		Method:   http.MethodGet,
		URL:      s.authURL + "/api/auth/user",
		Headers:  map[string]string{sessionHeader: sessionID},
	})
	if err != nil {
		kind := coreerr.As(err)
		if kind == coreerr.NotFound || kind == coreerr.Invalid {
			return Session{}, coreerr.New(coreerr.Unauthorized, "invalid session")
		}
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal(res.Body, &sess); err != nil {
		return Session{}, coreerr.Wrap(coreerr.Internal, err)
	}
	if strings.TrimSpace(sess.UserID) == "" {
		return Session{}, coreerr.New(coreerr.Unauthorized, "invalid session")
	}
	return sess, nil
}

// FromRequest reads X-Session-ID off r and validates it.
func (s *Shim) FromRequest(r *http.Request) (Session, error) {
	return s.Validate(r.Context(), r.Header.Get(sessionHeader))
}

// RequireAdmin enforces the admin-only endpoint rule from §4.I.
func RequireAdmin(sess Session) error {
	if !sess.HasRole("admin") {
		return coreerr.New(coreerr.Forbidden, "admin role required")
	}
	return nil
}
