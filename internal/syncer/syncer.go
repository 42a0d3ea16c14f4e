// Package syncer drives full and incremental re-indexing of CMS
// documents and tracks sync state across passes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/swayam-ai/ragsync/internal/content"
	"github.com/swayam-ai/ragsync/internal/state"
)

// DefaultDocTimeout bounds how long one document may spend in the
// pipeline before the sync moves on and records it as an error.
const DefaultDocTimeout = 60 * time.Second

// Source enumerates and fetches documents from the host CMS.
type Source interface {
	ListPublished(ctx context.Context, types []string) ([]content.Document, error)
	Get(ctx context.Context, id string) (*content.Document, error)
}

// Indexer is the document-level pipeline the syncer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *content.Document) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) int
}

// StateStore persists sync metadata between passes.
type StateStore interface {
	Load(ctx context.Context) (state.SyncState, error)
	Save(ctx context.Context, st state.SyncState) error
}

// DocError records one document that failed during a sync pass.
type DocError struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
}

// Result summarizes a full sync pass. IndexedCount is read back from
// the vector store after the pass, not computed locally.
type Result struct {
	Success        bool       `json:"success"`
	IndexedCount   int        `json:"indexed_count"`
	TotalPosts     int        `json:"total_posts"`
	TotalDocuments int        `json:"total_documents"`
	Errors         []DocError `json:"errors"`
	LastSync       time.Time  `json:"last_sync"`
	Duration       time.Duration
}

// Syncer orchestrates indexing across all configured document types.
type Syncer struct {
	source     Source
	indexer    Indexer
	state      StateStore
	types      []string
	docTimeout time.Duration
	logger     *slog.Logger
}

// New creates a Syncer over the given type filter set.
func New(source Source, indexer Indexer, stateStore StateStore, types []string, docTimeout time.Duration, logger *slog.Logger) *Syncer {
	if docTimeout <= 0 {
		docTimeout = DefaultDocTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		source:     source,
		indexer:    indexer,
		state:      stateStore,
		types:      types,
		docTimeout: docTimeout,
		logger:     logger,
	}
}

// TypeAllowed reports whether the document type is in the configured
// filter set.
func (s *Syncer) TypeAllowed(docType string) bool {
	return slices.Contains(s.types, docType)
}

// SyncAll re-indexes every published document of the configured types,
// in creation order. One failing document does not stop the pass: its
// error is recorded and the loop continues. Sync state is persisted at
// the end regardless of per-document failures.
func (s *Syncer) SyncAll(ctx context.Context) (*Result, error) {
	start := time.Now()

	docs, err := s.source.ListPublished(ctx, s.types)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	s.logger.Info("sync started", "documents", len(docs))

	result := &Result{TotalPosts: len(docs)}
	for i := range docs {
		doc := &docs[i]

		docCtx, cancel := context.WithTimeout(ctx, s.docTimeout)
		written, err := s.indexer.IndexDocument(docCtx, doc)
		cancel()

		if err != nil {
			s.logger.Warn("failed to index document", "document", doc.ID, "error", err)
			result.Errors = append(result.Errors, DocError{
				DocumentID: doc.ID,
				Title:      doc.Title,
				Reason:     err.Error(),
			})
			continue
		}
		result.TotalDocuments += written
	}

	result.LastSync = time.Now().UTC()
	result.IndexedCount = s.indexer.Count(ctx)
	result.Success = len(result.Errors) == 0
	result.Duration = time.Since(start)

	if err := s.state.Save(ctx, state.SyncState{
		LastSync:     result.LastSync,
		IndexedCount: result.IndexedCount,
	}); err != nil {
		s.logger.Warn("failed to persist sync state", "error", err)
	}

	s.logger.Info("sync complete",
		"indexed", result.TotalPosts-len(result.Errors),
		"failed", len(result.Errors),
		"records", result.TotalDocuments,
		"duration", result.Duration,
	)
	return result, nil
}

// SyncDocument re-indexes a single document if it is published and its
// type is configured; otherwise it is a no-op. Returns whether the
// document was indexed.
func (s *Syncer) SyncDocument(ctx context.Context, documentID string) (bool, error) {
	doc, err := s.source.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("fetch document %s: %w", documentID, err)
	}

	if !doc.Published() || !s.TypeAllowed(doc.Type) {
		return false, nil
	}

	docCtx, cancel := context.WithTimeout(ctx, s.docTimeout)
	defer cancel()

	if _, err := s.indexer.IndexDocument(docCtx, doc); err != nil {
		return false, fmt.Errorf("index document %s: %w", documentID, err)
	}

	s.refreshCount(ctx)
	return true, nil
}

// DeleteDocument purges one document's records from the index.
func (s *Syncer) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.indexer.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	s.refreshCount(ctx)
	return nil
}

// refreshCount updates the persisted indexed count, keeping the last
// sync timestamp intact.
func (s *Syncer) refreshCount(ctx context.Context) {
	st, err := s.state.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load sync state", "error", err)
		return
	}
	st.IndexedCount = s.indexer.Count(ctx)
	if err := s.state.Save(ctx, st); err != nil {
		s.logger.Warn("failed to persist sync state", "error", err)
	}
}
