package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"credpulse/auth"
	"credpulse/invoice"
	"credpulse/orchestrator"
	"credpulse/session"
)

// Server exposes the decision engine over HTTP with the contract the client
// layer consumes.
type Server struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Store
	invoices invoice.Repository
	authSvc  *auth.Service
	syncWait time.Duration
	logger   zerolog.Logger

	httpServer *http.Server
}

// NewServer wires the handlers over the given collaborators. syncWait is how
// long the analyze endpoint blocks for a terminal session before answering
// 202 with a poll handle.
func NewServer(addr string, orch *orchestrator.Orchestrator, sessions *session.Store, invoices invoice.Repository, authSvc *auth.Service, syncWait time.Duration, logger zerolog.Logger) *Server {
	s := &Server{
		orch:     orch,
		sessions: sessions,
		invoices: invoices,
		authSvc:  authSvc,
		syncWait: syncWait,
		logger:   logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	mux.HandleFunc("GET /agents/health", s.handleAgentHealth)
	mux.HandleFunc("POST /agents/analyze", s.requireAuth(s.handleAnalyze))
	mux.HandleFunc("GET /agents/status/{sessionID}", s.requireAuth(s.handleStatus))

	return s.logRequests(mux)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting api server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
