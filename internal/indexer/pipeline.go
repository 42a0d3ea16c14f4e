// Package indexer turns documents into embedded, identity-tagged
// records and keeps the vector index consistent per document.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/swayam-ai/ragsync/internal/chunker"
	"github.com/swayam-ai/ragsync/internal/content"
	"github.com/swayam-ai/ragsync/internal/storage"
)

// recordNamespace seeds deterministic record UUIDs. Changing it would
// orphan every existing record, so it is fixed forever.
var recordNamespace = uuid.MustParse("9f2c1a4e-0b7d-4c3a-8e52-6d1f0a9b3c71")

// Embedder generates embeddings for a batch of texts, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the subset of storage operations the pipeline uses.
type VectorStore interface {
	Upsert(ctx context.Context, records []storage.Record) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}

// Pipeline extracts, chunks, embeds, and stores one document at a time.
type Pipeline struct {
	extractor *content.Extractor
	embedder  Embedder
	store     VectorStore
	chunkSize int
	overlap   int
	logger    *slog.Logger
	locks     keyedMutex
}

// NewPipeline creates an indexing pipeline. chunkSize and overlap fall
// back to the chunker defaults when not positive.
func NewPipeline(extractor *content.Extractor, embedder Embedder, store VectorStore, chunkSize, overlap int, logger *slog.Logger) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultMaxSize
	}
	if overlap < 0 {
		overlap = chunker.DefaultOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    logger,
	}
}

// RecordID derives the deterministic identity UUID for one chunk from
// (document id, chunk index, chunk text). Unchanged content re-indexes
// to the same id; changed content gets a new one.
func RecordID(documentID string, index int, text string) string {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s:%d:%s", documentID, index, text))).String()
}

// IndexDocument extracts and chunks the document, embeds all chunks in
// one batched call, then replaces the document's records in the store:
// existing records are purged by document id before the new ones are
// inserted. Returns the number of records written.
//
// A failure between purge and insert leaves the document absent from
// the index until the next successful sync; the caller records the
// error and retries on a later pass.
func (p *Pipeline) IndexDocument(ctx context.Context, doc *content.Document) (int, error) {
	text := p.extractor.Extract(doc)
	if text == "" {
		return 0, nil
	}

	chunks := chunker.Split(text, p.chunkSize, p.overlap)
	if len(chunks) == 0 {
		return 0, nil
	}
	p.logger.Debug("chunked document", "document", doc.ID, "chunks", len(chunks))

	// Prepending the title gives each chunk document-level context in
	// embedding space.
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = doc.Title + "\n\n" + chunk
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	records := make([]storage.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = storage.Record{
			ID:      RecordID(doc.ID, i, chunk),
			Vector:  embeddings[i],
			Content: chunk,
			Meta: storage.RecordMeta{
				DocumentID:  doc.ID,
				Title:       doc.Title,
				Type:        doc.Type,
				PublishedAt: doc.PublishedAt,
				URL:         doc.URL,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
			},
		}
	}

	// Chunk boundaries shift when content changes, so stale records are
	// purged by document id rather than matched by exact identity. The
	// purge and insert are serialized per document.
	unlock := p.locks.lock(doc.ID)
	defer unlock()

	if err := p.store.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("purge stale records: %w", err)
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("store records: %w", err)
	}

	p.logger.Info("indexed document", "document", doc.ID, "records", len(records))
	return len(records), nil
}

// DeleteDocument purges all records for the given document id.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	unlock := p.locks.lock(documentID)
	defer unlock()

	return p.store.DeleteByDocumentID(ctx, documentID)
}

// Count returns the total record count in the index, soft-failing to 0
// when the store is unreachable since it only feeds status displays.
func (p *Pipeline) Count(ctx context.Context) int {
	count, err := p.store.Count(ctx)
	if err != nil {
		p.logger.Warn("record count unavailable", "error", err)
		return 0
	}
	return count
}

// keyedMutex provides one mutex per document id so concurrent syncs of
// the same document cannot interleave their purge/insert phases.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
