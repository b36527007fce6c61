package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"aria/internal/coreerr"

	"github.com/google/uuid"
)

// errorEnvelope is §7's standard error body for every non-/chat endpoint.
type errorEnvelope struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Timestamp  string `json:"timestamp"`
	RequestID  string `json:"request_id"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the §7 envelope for err, classifying its Kind into
// an HTTP status. /api/chat and /api/chat/stream never call this for
// ordinary turn failures — those degrade into a 200 with a natural
// language body instead (§7's propagation policy) — this is for
// Unauthorized/Forbidden short-circuits and every other endpoint.
func respondError(w http.ResponseWriter, err error) {
	kind := coreerr.As(err)
	status := statusForKind(kind)
	respondJSON(w, status, errorEnvelope{
		Error:      string(kind),
		Message:    err.Error(),
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequestID:  uuid.NewString(),
	})
}

func statusForKind(kind coreerr.Kind) int {
	switch kind {
	case coreerr.Unauthorized:
		return http.StatusUnauthorized
	case coreerr.Forbidden:
		return http.StatusForbidden
	case coreerr.Invalid:
		return http.StatusBadRequest
	case coreerr.NotFound:
		return http.StatusNotFound
	case coreerr.Conflict:
		return http.StatusConflict
	case coreerr.Timeout:
		return http.StatusGatewayTimeout
	case coreerr.CircuitOpen, coreerr.Unavailable:
		return http.StatusServiceUnavailable
	case coreerr.Cancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
