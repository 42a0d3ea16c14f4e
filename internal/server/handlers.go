package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/swayam-ai/ragsync/internal/content"
	"github.com/swayam-ai/ragsync/internal/rag"
)

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Success   bool         `json:"success"`
	Answer    string       `json:"answer,omitempty"`
	Sources   []rag.Source `json:"sources,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Error     string       `json:"error,omitempty"`
	Debug     string       `json:"debug,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ChatResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	// Rate limit before any validation or network work.
	if !s.limiter.Allow(clientIdentity(r)) {
		writeJSON(w, http.StatusTooManyRequests, ChatResponse{
			Success: false,
			Error:   "Too many requests. Please wait a moment before trying again.",
		})
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			writeJSON(w, http.StatusBadRequest, ChatResponse{
				Success: false,
				Error:   "Please provide a question.",
			})
			return
		}

		s.logger.Error("question answering failed", "error", err)
		resp := ChatResponse{
			Success: false,
			Error:   "An error occurred while processing your question. Please try again.",
		}
		if s.debug {
			resp.Debug = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Success:   true,
		Answer:    answer.Text,
		Sources:   answer.Sources,
		SessionID: sessionID,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.SyncAll(r.Context())
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "sync failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ContentEvent is the JSON body for POST /api/events, sent by the host
// CMS when a document changes.
type ContentEvent struct {
	Event      string `json:"event"` // "save" | "delete" | "status_change"
	DocumentID string `json:"document_id"`
	Type       string `json:"type"`
	Status     string `json:"status,omitempty"`
	OldStatus  string `json:"old_status,omitempty"`
	NewStatus  string `json:"new_status,omitempty"`
}

// handleEvents maps CMS lifecycle events to index maintenance. Syncs
// are enqueued, never run inline, so the CMS save that triggered the
// event is not blocked on indexing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var ev ContentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.DocumentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid event body",
		})
		return
	}

	var err error
	switch ev.Event {
	case "save":
		if ev.Status == content.StatusPublished && s.syncer.TypeAllowed(ev.Type) {
			err = s.queue.Enqueue(ev.DocumentID)
		}
	case "delete":
		err = s.syncer.DeleteDocument(r.Context(), ev.DocumentID)
	case "status_change":
		switch {
		case ev.OldStatus == content.StatusPublished && ev.NewStatus != content.StatusPublished:
			err = s.syncer.DeleteDocument(r.Context(), ev.DocumentID)
		case ev.OldStatus != content.StatusPublished && ev.NewStatus == content.StatusPublished && s.syncer.TypeAllowed(ev.Type):
			err = s.queue.Enqueue(ev.DocumentID)
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "unknown event",
		})
		return
	}

	if err != nil {
		s.logger.Error("event handling failed", "event", ev.Event, "document", ev.DocumentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "event handling failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// requireAdmin guards admin-only endpoints with a shared token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if s.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
