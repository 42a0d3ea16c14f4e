package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/swayam-ai/ragsync/internal/rag"
	"github.com/swayam-ai/ragsync/internal/state"
	"github.com/swayam-ai/ragsync/internal/syncer"
)

type stubAnswerer struct {
	answer *rag.Answer
	err    error
}

func (s *stubAnswerer) Answer(ctx context.Context, question string) (*rag.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, rag.ErrEmptyQuestion
	}
	return s.answer, s.err
}

type stubSyncRunner struct {
	result  *syncer.Result
	err     error
	deleted []string
	types   []string
}

func (s *stubSyncRunner) SyncAll(ctx context.Context) (*syncer.Result, error) {
	return s.result, s.err
}

func (s *stubSyncRunner) DeleteDocument(ctx context.Context, documentID string) error {
	s.deleted = append(s.deleted, documentID)
	return nil
}

func (s *stubSyncRunner) TypeAllowed(docType string) bool {
	for _, t := range s.types {
		if t == docType {
			return true
		}
	}
	return false
}

type stubQueue struct {
	enqueued []string
	err      error
}

func (s *stubQueue) Enqueue(documentID string) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, documentID)
	return nil
}

type stubState struct {
	st  state.SyncState
	err error
}

func (s *stubState) Load(ctx context.Context) (state.SyncState, error) {
	return s.st, s.err
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Answerer == nil {
		cfg.Answerer = &stubAnswerer{answer: &rag.Answer{Text: "ok"}}
	}
	if cfg.Syncer == nil {
		cfg.Syncer = &stubSyncRunner{result: &syncer.Result{Success: true}, types: []string{"post"}}
	}
	if cfg.Queue == nil {
		cfg.Queue = &stubQueue{}
	}
	if cfg.State == nil {
		cfg.State = &stubState{}
	}
	srv := New(cfg)
	t.Cleanup(srv.Close)
	return srv.Handler()
}

func postJSON(handler http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestChat tests the happy path of POST /api/chat.
func TestChat(t *testing.T) {
	answerer := &stubAnswerer{answer: &rag.Answer{
		Text:    "Shipping takes three days.",
		Sources: []rag.Source{{Title: "Shipping", URL: "https://example.com/shipping"}},
	}}
	handler := newTestServer(t, Config{Answerer: answerer})

	rec := postJSON(handler, "/api/chat", ChatRequest{Question: "How long?"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad response JSON: %v", err)
	}
	if !resp.Success || resp.Answer != "Shipping takes three days." {
		t.Errorf("Response wrong: %+v", resp)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("Expected 1 source, got %+v", resp.Sources)
	}
	if resp.SessionID == "" {
		t.Error("Expected generated session id")
	}
}

// TestChat_SessionEcho tests that a provided session id is echoed back.
func TestChat_SessionEcho(t *testing.T) {
	handler := newTestServer(t, Config{})

	rec := postJSON(handler, "/api/chat", ChatRequest{Question: "q?", SessionID: "abc-123"}, nil)

	var resp ChatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != "abc-123" {
		t.Errorf("Expected session echo, got %q", resp.SessionID)
	}
}

// TestChat_EmptyQuestion tests the 400 on a blank question.
func TestChat_EmptyQuestion(t *testing.T) {
	handler := newTestServer(t, Config{Answerer: &stubAnswerer{}})

	rec := postJSON(handler, "/api/chat", ChatRequest{Question: "   "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	var resp ChatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || resp.Error != "Please provide a question." {
		t.Errorf("Response wrong: %+v", resp)
	}
}

// TestChat_BadBody tests the 400 on unparseable JSON.
func TestChat_BadBody(t *testing.T) {
	handler := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

// TestChat_PipelineError tests that internal failures stay generic
// unless debug mode is on.
func TestChat_PipelineError(t *testing.T) {
	failing := &stubAnswerer{err: errors.New("qdrant connection refused")}

	t.Run("debug off", func(t *testing.T) {
		handler := newTestServer(t, Config{Answerer: failing})
		rec := postJSON(handler, "/api/chat", ChatRequest{Question: "q?"}, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", rec.Code)
		}

		var resp ChatResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Debug != "" {
			t.Errorf("Internal detail leaked without debug: %q", resp.Debug)
		}
		if strings.Contains(resp.Error, "qdrant") {
			t.Errorf("Internal detail leaked in error: %q", resp.Error)
		}
	})

	t.Run("debug on", func(t *testing.T) {
		handler := newTestServer(t, Config{Answerer: failing, Debug: true})
		rec := postJSON(handler, "/api/chat", ChatRequest{Question: "q?"}, nil)

		var resp ChatResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if !strings.Contains(resp.Debug, "qdrant") {
			t.Errorf("Expected debug detail, got %+v", resp)
		}
	})
}

// TestChat_RateLimit tests that a client is cut off after the per-minute
// budget while other clients remain unaffected.
func TestChat_RateLimit(t *testing.T) {
	handler := newTestServer(t, Config{})

	for i := 0; i < rateRequests; i++ {
		rec := postJSON(handler, "/api/chat", ChatRequest{Question: "q?"},
			map[string]string{"X-User-ID": "alice"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := postJSON(handler, "/api/chat", ChatRequest{Question: "q?"},
		map[string]string{"X-User-ID": "alice"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Request %d: expected 429, got %d", rateRequests+1, rec.Code)
	}

	// A different identity still has a full budget.
	rec = postJSON(handler, "/api/chat", ChatRequest{Question: "q?"},
		map[string]string{"X-User-ID": "bob"})
	if rec.Code != http.StatusOK {
		t.Errorf("Second client rejected: %d", rec.Code)
	}
}

// TestHealth tests the health endpoint with and without sync state.
func TestHealth(t *testing.T) {
	lastSync := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	handler := newTestServer(t, Config{
		State: &stubState{st: state.SyncState{LastSync: lastSync, IndexedCount: 42}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad response JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Version != Version {
		t.Errorf("Response wrong: %+v", resp)
	}
	if resp.IndexedCount != 42 || resp.LastSync != "2026-08-01T12:00:00Z" {
		t.Errorf("Sync state wrong: %+v", resp)
	}
}

// TestHealth_StateUnavailable tests the soft-fail when state cannot load.
func TestHealth_StateUnavailable(t *testing.T) {
	handler := newTestServer(t, Config{State: &stubState{err: errors.New("locked")}})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 despite state failure, got %d", rec.Code)
	}

	var resp HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "ok" || resp.IndexedCount != 0 || resp.LastSync != "" {
		t.Errorf("Expected zeroed state, got %+v", resp)
	}
}

// TestAdminAuth tests token gating on the admin endpoints.
func TestAdminAuth(t *testing.T) {
	handler := newTestServer(t, Config{AdminToken: "secret"})

	t.Run("missing token", func(t *testing.T) {
		rec := postJSON(handler, "/api/sync", nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		rec := postJSON(handler, "/api/sync", nil, map[string]string{"X-Admin-Token": "nope"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("correct token", func(t *testing.T) {
		rec := postJSON(handler, "/api/sync", nil, map[string]string{"X-Admin-Token": "secret"})
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("no token configured rejects everything", func(t *testing.T) {
		open := newTestServer(t, Config{})
		rec := postJSON(open, "/api/sync", nil, map[string]string{"X-Admin-Token": ""})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 with no configured token, got %d", rec.Code)
		}
	})
}

// TestSyncEndpoint tests that POST /api/sync returns the pass result.
func TestSyncEndpoint(t *testing.T) {
	runner := &stubSyncRunner{
		result: &syncer.Result{Success: true, TotalPosts: 4, TotalDocuments: 9, IndexedCount: 9},
		types:  []string{"post"},
	}
	handler := newTestServer(t, Config{Syncer: runner, AdminToken: "secret"})

	rec := postJSON(handler, "/api/sync", nil, map[string]string{"X-Admin-Token": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var result syncer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Bad response JSON: %v", err)
	}
	if !result.Success || result.TotalPosts != 4 || result.TotalDocuments != 9 {
		t.Errorf("Result wrong: %+v", result)
	}
}

// TestEvents covers the lifecycle-event to index-maintenance mapping.
func TestEvents(t *testing.T) {
	auth := map[string]string{"X-Admin-Token": "secret"}

	newFixture := func() (http.Handler, *stubSyncRunner, *stubQueue) {
		runner := &stubSyncRunner{result: &syncer.Result{}, types: []string{"post"}}
		queue := &stubQueue{}
		h := newTestServer(t, Config{Syncer: runner, Queue: queue, AdminToken: "secret"})
		return h, runner, queue
	}

	t.Run("publish save enqueues", func(t *testing.T) {
		h, _, queue := newFixture()
		rec := postJSON(h, "/api/events", ContentEvent{
			Event: "save", DocumentID: "1", Type: "post", Status: "publish",
		}, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if len(queue.enqueued) != 1 || queue.enqueued[0] != "1" {
			t.Errorf("Expected enqueue of document 1, got %v", queue.enqueued)
		}
	})

	t.Run("draft save ignored", func(t *testing.T) {
		h, runner, queue := newFixture()
		rec := postJSON(h, "/api/events", ContentEvent{
			Event: "save", DocumentID: "1", Type: "post", Status: "draft",
		}, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if len(queue.enqueued) != 0 || len(runner.deleted) != 0 {
			t.Error("Draft save should be a no-op")
		}
	})

	t.Run("unconfigured type ignored", func(t *testing.T) {
		h, _, queue := newFixture()
		postJSON(h, "/api/events", ContentEvent{
			Event: "save", DocumentID: "1", Type: "attachment", Status: "publish",
		}, auth)
		if len(queue.enqueued) != 0 {
			t.Errorf("Unexpected enqueue: %v", queue.enqueued)
		}
	})

	t.Run("delete purges", func(t *testing.T) {
		h, runner, _ := newFixture()
		rec := postJSON(h, "/api/events", ContentEvent{
			Event: "delete", DocumentID: "7", Type: "post",
		}, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if len(runner.deleted) != 1 || runner.deleted[0] != "7" {
			t.Errorf("Expected delete of document 7, got %v", runner.deleted)
		}
	})

	t.Run("unpublish purges", func(t *testing.T) {
		h, runner, queue := newFixture()
		postJSON(h, "/api/events", ContentEvent{
			Event: "status_change", DocumentID: "8", Type: "post",
			OldStatus: "publish", NewStatus: "draft",
		}, auth)
		if len(runner.deleted) != 1 || runner.deleted[0] != "8" {
			t.Errorf("Expected delete of document 8, got %v", runner.deleted)
		}
		if len(queue.enqueued) != 0 {
			t.Errorf("Unexpected enqueue: %v", queue.enqueued)
		}
	})

	t.Run("publish transition enqueues", func(t *testing.T) {
		h, runner, queue := newFixture()
		postJSON(h, "/api/events", ContentEvent{
			Event: "status_change", DocumentID: "9", Type: "post",
			OldStatus: "draft", NewStatus: "publish",
		}, auth)
		if len(queue.enqueued) != 1 || queue.enqueued[0] != "9" {
			t.Errorf("Expected enqueue of document 9, got %v", queue.enqueued)
		}
		if len(runner.deleted) != 0 {
			t.Errorf("Unexpected delete: %v", runner.deleted)
		}
	})

	t.Run("unknown event rejected", func(t *testing.T) {
		h, _, _ := newFixture()
		rec := postJSON(h, "/api/events", ContentEvent{Event: "mystery", DocumentID: "1"}, auth)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing document id rejected", func(t *testing.T) {
		h, _, _ := newFixture()
		rec := postJSON(h, "/api/events", ContentEvent{Event: "save"}, auth)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

// TestClientIdentity tests identity derivation for rate limiting.
func TestClientIdentity(t *testing.T) {
	withUser := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	withUser.Header.Set("X-User-ID", "u-1")
	if got := clientIdentity(withUser); got != "user:u-1" {
		t.Errorf("Expected user identity, got %q", got)
	}

	anon := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	anon.RemoteAddr = "198.51.100.7:52314"
	id := clientIdentity(anon)
	if !strings.HasPrefix(id, "ip:") {
		t.Errorf("Expected hashed ip identity, got %q", id)
	}
	if strings.Contains(id, "198.51.100.7") {
		t.Errorf("Raw address leaked into identity: %q", id)
	}

	// Same host, different port: same identity.
	anon2 := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	anon2.RemoteAddr = "198.51.100.7:40000"
	if clientIdentity(anon2) != id {
		t.Error("Identity should not depend on source port")
	}
}

// TestLimiter_Window tests that the budget is a per-window counter: no
// request over budget is allowed until the full window has elapsed, and
// rejected requests do not push the window forward.
func TestLimiter_Window(t *testing.T) {
	l := newClientLimiter()
	defer l.stop()

	for i := 0; i < rateRequests; i++ {
		if !l.Allow("x") {
			t.Fatalf("Request %d rejected under budget", i+1)
		}
	}
	if l.Allow("x") {
		t.Fatal("Request over budget allowed")
	}

	// Part of the window passing must not readmit the client.
	backdate(l, "x", 6*time.Second)
	if l.Allow("x") {
		t.Error("Request allowed before the window expired")
	}

	// Rejections must not have pushed the expiry forward.
	l.mu.Lock()
	expires := l.clients["x"].expires
	l.mu.Unlock()
	if time.Until(expires) > rateWindow-6*time.Second {
		t.Error("Rejected requests extended the window")
	}

	// Once the full window has elapsed, the budget resets.
	backdate(l, "x", rateWindow)
	if !l.Allow("x") {
		t.Error("Request rejected after the window expired")
	}
}

// backdate shifts an identity's window expiry into the past, simulating
// elapsed time without sleeping.
func backdate(l *clientLimiter, identity string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.clients[identity]; ok {
		entry.expires = entry.expires.Add(-d)
	}
}
