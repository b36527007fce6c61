package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"aria/internal/auth"
	"aria/internal/coreerr"
	"aria/internal/experts"
	"aria/internal/orchestrator"
	"aria/internal/storage"
)

// resolveSession applies §4.I/§6: every non-public endpoint requires
// X-Session-ID, except in local-dev mode where a missing header resolves
// to the bypass admin session.
func (s *Server) resolveSession(r *http.Request) (auth.Session, error) {
	return s.auth.FromRequest(r)
}

type chatRequest struct {
	Message       string            `json:"message"`
	ContextType   string            `json:"context_type"`
	ClientSignals chatClientSignals `json:"client_signals"`
}

type chatClientSignals struct {
	TaskCompleted        bool  `json:"task_completed"`
	FollowUpIn60s        bool  `json:"follow_up_in_60s"`
	EngagementDurationMs int64 `json:"engagement_duration_ms"`
}

type chatResponse struct {
	Response        string   `json:"response"`
	ResponseTime    float64  `json:"response_time"`
	InteractionID   string   `json:"interaction_id"`
	EpisodeID       string   `json:"episode_id"`
	ExecutedExperts []string `json:"executed_experts"`
	Partial         bool     `json:"partial"`
}

func decodeChatRequest(r *http.Request) (orchestrator.Request, error) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return orchestrator.Request{}, coreerr.New(coreerr.Invalid, "malformed request body")
	}
	return orchestrator.Request{
		Message:       body.Message,
		ContextType:   storage.ContextType(body.ContextType),
		SessionID:     r.Header.Get("X-Session-ID"),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
		ClientSignals: orchestrator.ClientSignals{
			TaskCompleted:        body.ClientSignals.TaskCompleted,
			FollowUpIn60s:        body.ClientSignals.FollowUpIn60s,
			EngagementDurationMs: body.ClientSignals.EngagementDurationMs,
		},
	}, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		respondError(w, err)
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	req.UserID = sess.UserID

	resp, err := s.orchestrator.Complete(r.Context(), req)
	if err != nil {
		// Invalid (empty or oversized message) reaches here, as does the
		// error from opening the episode (typically Internal); failures
		// after that point are folded into a degraded Response body.
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		Response:        resp.Response,
		ResponseTime:    resp.ResponseTime.Seconds(),
		InteractionID:   resp.InteractionID,
		EpisodeID:       resp.EpisodeID,
		ExecutedExperts: resp.ExecutedExperts,
		Partial:         resp.Partial,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		respondError(w, err)
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	req.UserID = sess.UserID

	fl, ok := w.(http.Flusher)
	if !ok {
		respondError(w, coreerr.New(coreerr.Internal, "streaming not supported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	out := make(chan orchestrator.StreamEvent, 8)
	go s.orchestrator.Stream(r.Context(), req, out)

	for ev := range out {
		b, merr := json.Marshal(ev)
		if merr != nil {
			continue
		}
		w.Write([]byte("data: "))
		w.Write(b)
		w.Write([]byte("\n\n"))
		fl.Flush()
	}
}

type chatStatusResponse struct {
	ActiveEpisode   string         `json:"active_episode"`
	EpisodeMessages int            `json:"episode_messages"`
	Enhancements    map[string]any `json:"enhancements"`
}

func (s *Server) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		respondError(w, err)
		return
	}

	userID := sess.UserID
	if q := r.URL.Query().Get("user_id"); q != "" && q != sess.UserID {
		if rerr := auth.RequireAdmin(sess); rerr != nil {
			respondError(w, rerr)
			return
		}
		userID = q
	}

	contextType := storage.ContextType(r.URL.Query().Get("context_type"))
	if contextType == "" {
		contextType = storage.ContextChat
	}

	ep, err := s.memory.ActiveEpisode(r.Context(), userID, contextType)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := chatStatusResponse{
		Enhancements: map[string]any{
			"memory_search_enabled": true,
			"expert_count":          len(s.registry.All()),
		},
	}
	if ep != nil {
		resp.ActiveEpisode = ep.ID
		resp.EpisodeMessages = ep.MessageCount
	}
	respondJSON(w, http.StatusOK, resp)
}

type feedbackRequest struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
	Text  string          `json:"text"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		respondError(w, err)
		return
	}

	interactionID := r.PathValue("interactionID")
	var body feedbackRequest
	if derr := json.NewDecoder(r.Body).Decode(&body); derr != nil {
		respondError(w, coreerr.New(coreerr.Invalid, "malformed request body"))
		return
	}

	kind := storage.FeedbackKind(body.Kind)
	value := feedbackValue(body.Kind, body.Value)

	if ferr := s.satisfaction.RecordFeedback(r.Context(), interactionID, kind, value, body.Text, storage.Feedback{
		ID:     interactionID + ":" + body.Kind,
		UserID: sess.UserID,
	}); ferr != nil {
		respondError(w, ferr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// feedbackValue normalizes §6's `value?: int|bool` into the float64 the
// Satisfaction Tracker stores, since JSON numbers and booleans decode to
// different Go types.
func feedbackValue(kind string, raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	if kind == string(storage.FeedbackThumbs) {
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			if b {
				return 1
			}
			return 0
		}
	}
	var f float64
	_ = json.Unmarshal(raw, &f)
	return f
}

type expertDescriptorResponse struct {
	Name              string   `json:"name"`
	Capabilities      []string `json:"capabilities"`
	DefaultConfidence float64  `json:"default_confidence"`
}

func (s *Server) handleListExperts(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := auth.RequireAdmin(sess); err != nil {
		respondError(w, err)
		return
	}

	descs, err := s.descriptors.List(r.Context())
	if err != nil {
		respondError(w, coreerr.Wrap(coreerr.Internal, err))
		return
	}

	out := make([]expertDescriptorResponse, 0, len(descs))
	for _, d := range descs {
		out = append(out, expertDescriptorResponse{
			Name:              d.Name,
			Capabilities:      d.Capabilities,
			DefaultConfidence: d.DefaultConfidence,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"experts": out})
}

type probeRequest struct {
	Query string `json:"query"`
}

type probeResponse struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func (s *Server) handleProbeExpert(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := auth.RequireAdmin(sess); err != nil {
		respondError(w, err)
		return
	}

	name := r.PathValue("name")
	e, ok := s.registry.ByName(name)
	if !ok {
		respondError(w, coreerr.New(coreerr.NotFound, "unknown expert: "+name))
		return
	}

	var body probeRequest
	if derr := json.NewDecoder(r.Body).Decode(&body); derr != nil {
		respondError(w, coreerr.New(coreerr.Invalid, "malformed request body"))
		return
	}

	score := e.CanHandle(body.Query, experts.Hints{Now: time.Now().UTC()})
	respondJSON(w, http.StatusOK, probeResponse{Name: name, Score: score})
}
