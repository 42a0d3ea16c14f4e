// Package rag answers questions by retrieving indexed chunks and
// conditioning a language model on them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/swayam-ai/ragsync/internal/storage"
)

// ErrEmptyQuestion is returned for blank questions, before any network
// call is made.
var ErrEmptyQuestion = errors.New("question is empty")

// topK is the retrieval width. Wider retrieval mostly adds duplicate
// documents after source dedup.
const topK = 5

const promptTemplate = `You are a helpful assistant for this website.
Answer the question using ONLY the context below. If the context does
not contain the answer, say you don't know. Be concise.

Context:
%s

Question: %s

Answer:`

// Embedder generates embeddings for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher performs similarity search over the vector index.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]storage.ScoredRecord, error)
}

// ChatClient generates a completion for a prompt.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Answer is the result of a successful question-answering pass.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Answerer runs the embed -> retrieve -> generate pipeline. The
// embedder must be the same model used at indexing time so query and
// record vectors share an embedding space.
type Answerer struct {
	embedder Embedder
	searcher Searcher
	chat     ChatClient
	logger   *slog.Logger
}

// NewAnswerer creates an Answerer.
func NewAnswerer(embedder Embedder, searcher Searcher, chat ChatClient, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		embedder: embedder,
		searcher: searcher,
		chat:     chat,
		logger:   logger,
	}
}

// Answer embeds the question, retrieves the most similar records,
// prompts the model over them, and returns the answer with deduplicated
// sources. Blank questions fail with ErrEmptyQuestion before any
// service is contacted.
func (a *Answerer) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	embeddings, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	records, err := a.searcher.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	a.logger.Debug("retrieved context", "records", len(records))

	text, err := a.chat.Complete(ctx, buildPrompt(question, records))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{
		Text:    strings.TrimSpace(text),
		Sources: formatSources(records),
	}, nil
}

// buildPrompt numbers each retrieved chunk so the model can ground its
// answer in specific passages.
func buildPrompt(question string, records []storage.ScoredRecord) string {
	var b strings.Builder
	for i, r := range records {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, r.Record.Content)
	}
	contextText := strings.TrimSpace(b.String())
	if contextText == "" {
		contextText = "(no relevant content found)"
	}
	return fmt.Sprintf(promptTemplate, contextText, question)
}
