// Package httpapi implements the Control Plane (§4.J): the public HTTP
// surface over the Chat Orchestrator, Satisfaction Tracker, and Expert
// Dispatcher, grounded on the teacher's httpapi.Server (Go 1.22
// method-pattern ServeMux, one registerRoutes method, a thin
// respondJSON/respondError pair).
package httpapi

import (
	"net/http"

	"aria/internal/auth"
	"aria/internal/dispatch"
	"aria/internal/experts"
	"aria/internal/memory"
	"aria/internal/orchestrator"
	"aria/internal/satisfaction"
	"aria/internal/storage"
)

// Server exposes the Control Plane's HTTP endpoints.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	auth         *auth.Shim
	memory       *memory.Manager
	satisfaction *satisfaction.Tracker
	registry     *experts.Registry
	descriptors  storage.ExpertDescriptorStore
	dispatcher   *dispatch.Dispatcher
	localDevMode bool
	mux          *http.ServeMux
}

// New builds the Control Plane server wired to the core's components.
func New(orch *orchestrator.Orchestrator, shim *auth.Shim, mem *memory.Manager, sat *satisfaction.Tracker, registry *experts.Registry, descriptors storage.ExpertDescriptorStore, disp *dispatch.Dispatcher, localDevMode bool) *Server {
	s := &Server{
		orchestrator: orch,
		auth:         shim,
		memory:       mem,
		satisfaction: sat,
		registry:     registry,
		descriptors:  descriptors,
		dispatcher:   disp,
		localDevMode: localDevMode,
		mux:          http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("GET /api/chat/status", s.handleChatStatus)
	s.mux.HandleFunc("POST /api/feedback/{interactionID}", s.handleFeedback)
	s.mux.HandleFunc("GET /api/experts", s.handleListExperts)
	s.mux.HandleFunc("POST /api/experts/{name}/probe", s.handleProbeExpert)
}
