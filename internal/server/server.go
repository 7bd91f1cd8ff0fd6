// Package server provides the HTTP REST API for the interview agent.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/engine"
	"github.com/jonathan/interview-agent/internal/promptcache"
	"github.com/jonathan/interview-agent/internal/session"
	"github.com/jonathan/interview-agent/internal/store"
)

// Config holds server configuration.
type Config struct {
	Port                int
	SessionTTL          time.Duration
	Demo                bool
	FollowUpBudget      int
	SimilarityThreshold float64
}

// Server is the HTTP front end over the session manager.
type Server struct {
	httpServer *http.Server
	deps       engine.Deps
	sessions   *session.Manager
	archive    *store.Store
	cfg        Config
	logger     *zap.Logger
}

// New creates a server. archive may be nil; completed interviews are then
// not persisted.
func New(cfg Config, deps engine.Deps, archive *store.Store, logger *zap.Logger) *Server {
	if deps.Cache == nil {
		deps.Cache = promptcache.New()
	}

	s := &Server{
		deps:     deps,
		sessions: session.NewManager(cfg.SessionTTL, logger),
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/interviews", s.handleCreateInterview)
	mux.HandleFunc("POST /api/sample", s.handleCreateSample)
	mux.HandleFunc("POST /api/interviews/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/interviews/{id}/respond", s.handleRespond)
	mux.HandleFunc("GET /api/interviews/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/interviews/{id}/state", s.handleState)
	mux.HandleFunc("DELETE /api/interviews/{id}", s.handleEnd)
	mux.HandleFunc("GET /api/archive", s.handleListArchive)
	mux.HandleFunc("GET /api/archive/{id}", s.handleGetArchive)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go s.sessions.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	s.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.archive != nil {
		s.archive.Close()
	}
	s.logger.Info("server stopped")
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// jsonResponse writes a JSON response with the given status.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
