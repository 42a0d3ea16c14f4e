package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultBatchSize bounds how many texts go into one embedding request.
// Local model servers handle large batches but small ones keep request
// latency predictable during long syncs.
const DefaultBatchSize = 100

// Embedder generates embeddings for text batches. Requests are retried
// with exponential backoff when the server reports overload.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
}

// NewEmbedder creates an Embedder for the given model. If batchSize is
// not positive, DefaultBatchSize is used.
func NewEmbedder(client *Client, model string, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
	}
}

// Embed generates one embedding per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

// embedBatchWithRetry generates embeddings for a single batch. Rate
// limit responses (HTTP 429) are retried with exponential backoff;
// other errors fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: e.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // retried with backoff
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf(
				"embedding count mismatch: sent %d texts, got %d vectors",
				len(texts), len(resp.Data)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32. The API returns float64
// but the vector store uses float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
