// Package storage owns the vector index. It is the only package that
// talks to Qdrant.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// Store wraps the Qdrant client with connection management, health
// checks, and the record-level operations the pipeline needs.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	Dimension  int
}

// New creates a Store and validates connectivity, retrying the initial
// health check with exponential backoff before failing fast.
func New(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &Store{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *Store) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Exists reports whether the collection has been created. Transport
// errors are returned so callers can decide whether to soft-fail.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the collection (cosine distance, payload
// index on document_id) if it does not exist. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Purges and re-index deletes filter on document_id; without the
	// index those become full scans.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create document_id index: %w", err)
	}

	return nil
}

// Upsert stores records, batched in groups of 100, retrying each batch
// with exponential backoff.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	for i, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Vector), s.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		batch := records[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, r := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.ID),
				Vectors: qdrant.NewVectors(r.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id":  r.Meta.DocumentID,
					"title":        r.Meta.Title,
					"type":         r.Meta.Type,
					"published_at": r.Meta.PublishedAt.Format(time.RFC3339),
					"url":          r.Meta.URL,
					"chunk_index":  int64(r.Meta.ChunkIndex),
					"total_chunks": int64(r.Meta.TotalChunks),
					"content":      r.Content,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

func (s *Store) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	wait := true
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// DeleteByDocumentID removes every record whose payload document_id
// matches. No-ops when the collection does not exist yet.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID string) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("document_id", documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete records for document %s: %w", documentID, err)
	}
	return nil
}

// Search returns the top-k records most similar to the query vector,
// ordered by score descending.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]ScoredRecord, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}

	records := make([]ScoredRecord, 0, len(results))
	for _, result := range results {
		payload := result.Payload

		publishedAt, err := time.Parse(time.RFC3339, payload["published_at"].GetStringValue())
		if err != nil {
			publishedAt = time.Time{}
		}

		records = append(records, ScoredRecord{
			Record: Record{
				ID:      result.Id.GetUuid(),
				Content: payload["content"].GetStringValue(),
				Meta: RecordMeta{
					DocumentID:  payload["document_id"].GetStringValue(),
					Title:       payload["title"].GetStringValue(),
					Type:        payload["type"].GetStringValue(),
					PublishedAt: publishedAt,
					URL:         payload["url"].GetStringValue(),
					ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
					TotalChunks: int(payload["total_chunks"].GetIntegerValue()),
				},
			},
			Score: result.Score,
		})
	}

	return records, nil
}

// Count returns the total number of records in the index. Returns 0
// without error when the collection does not exist yet.
func (s *Store) Count(ctx context.Context) (int, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}
