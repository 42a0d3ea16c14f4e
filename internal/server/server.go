// Package server exposes the HTTP surface: question answering, health,
// admin sync trigger, and CMS content-event intake.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/swayam-ai/ragsync/internal/rag"
	"github.com/swayam-ai/ragsync/internal/state"
	"github.com/swayam-ai/ragsync/internal/syncer"
)

// Version is reported by the health endpoint.
const Version = "v0.1.0"

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

// SyncRunner is the orchestrator surface the HTTP layer drives.
type SyncRunner interface {
	SyncAll(ctx context.Context) (*syncer.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
	TypeAllowed(docType string) bool
}

// TaskQueue schedules background single-document syncs.
type TaskQueue interface {
	Enqueue(documentID string) error
}

// StateReader reads persisted sync metadata.
type StateReader interface {
	Load(ctx context.Context) (state.SyncState, error)
}

// Server holds handler dependencies.
type Server struct {
	answerer   Answerer
	syncer     SyncRunner
	queue      TaskQueue
	state      StateReader
	limiter    *clientLimiter
	adminToken string
	debug      bool
	logger     *slog.Logger
}

// Config holds server dependencies and settings.
type Config struct {
	Answerer   Answerer
	Syncer     SyncRunner
	Queue      TaskQueue
	State      StateReader
	AdminToken string
	Debug      bool
	Logger     *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		answerer:   cfg.Answerer,
		syncer:     cfg.Syncer,
		queue:      cfg.Queue,
		state:      cfg.State,
		limiter:    newClientLimiter(),
		adminToken: cfg.AdminToken,
		debug:      cfg.Debug,
		logger:     logger,
	}
}

// Close releases server-owned background resources (the rate limiter's
// sweep goroutine).
func (s *Server) Close() {
	s.limiter.stop()
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/sync", s.requireAdmin(s.handleSync))
	mux.HandleFunc("POST /api/events", s.requireAdmin(s.handleEvents))

	return Chain(mux,
		Recover(s.logger),
		Logger(s.logger),
	)
}
