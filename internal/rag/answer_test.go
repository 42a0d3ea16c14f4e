package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/swayam-ai/ragsync/internal/storage"
)

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

type stubSearcher struct {
	records []storage.ScoredRecord
	limit   int
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, vector []float32, limit int) ([]storage.ScoredRecord, error) {
	s.limit = limit
	return s.records, s.err
}

type stubChat struct {
	prompt string
	reply  string
	err    error
}

func (s *stubChat) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func scored(content, url, title string) storage.ScoredRecord {
	return storage.ScoredRecord{
		Record: storage.Record{
			Content: content,
			Meta:    storage.RecordMeta{Title: title, URL: url, Type: "post"},
		},
		Score: 0.9,
	}
}

// TestAnswer tests the embed-retrieve-generate path against stubs.
func TestAnswer(t *testing.T) {
	embedder := &stubEmbedder{}
	searcher := &stubSearcher{records: []storage.ScoredRecord{
		scored("Shipping takes 3 days.", "https://example.com/shipping", "Shipping"),
	}}
	chat := &stubChat{reply: "  Shipping takes three days.  "}

	answerer := NewAnswerer(embedder, searcher, chat, nil)
	answer, err := answerer.Answer(context.Background(), "How long does shipping take?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if answer.Text != "Shipping takes three days." {
		t.Errorf("Answer text not trimmed: %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].URL != "https://example.com/shipping" {
		t.Errorf("Sources wrong: %+v", answer.Sources)
	}
	if searcher.limit != topK {
		t.Errorf("Expected retrieval limit %d, got %d", topK, searcher.limit)
	}

	// Prompt carries the retrieved chunk and the question.
	if !strings.Contains(chat.prompt, "[1] Shipping takes 3 days.") {
		t.Errorf("Prompt missing numbered context:\n%s", chat.prompt)
	}
	if !strings.Contains(chat.prompt, "Question: How long does shipping take?") {
		t.Errorf("Prompt missing question:\n%s", chat.prompt)
	}
}

// TestAnswer_EmptyQuestion tests that blank input fails before any
// service call.
func TestAnswer_EmptyQuestion(t *testing.T) {
	embedder := &stubEmbedder{}
	answerer := NewAnswerer(embedder, &stubSearcher{}, &stubChat{}, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := answerer.Answer(context.Background(), q)
		if !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("Question %q: expected ErrEmptyQuestion, got %v", q, err)
		}
	}
	if embedder.calls != 0 {
		t.Errorf("Embedder called %d times for blank questions", embedder.calls)
	}
}

// TestAnswer_NoResults tests that an empty index still yields an answer
// with the placeholder context and no sources.
func TestAnswer_NoResults(t *testing.T) {
	chat := &stubChat{reply: "I don't know."}
	answerer := NewAnswerer(&stubEmbedder{}, &stubSearcher{}, chat, nil)

	answer, err := answerer.Answer(context.Background(), "Anything?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Expected no sources, got %+v", answer.Sources)
	}
	if !strings.Contains(chat.prompt, "(no relevant content found)") {
		t.Errorf("Prompt missing empty-context placeholder:\n%s", chat.prompt)
	}
}

// TestAnswer_Errors tests that each stage's failure surfaces with context.
func TestAnswer_Errors(t *testing.T) {
	t.Run("embed failure", func(t *testing.T) {
		answerer := NewAnswerer(&stubEmbedder{err: errors.New("down")}, &stubSearcher{}, &stubChat{}, nil)
		_, err := answerer.Answer(context.Background(), "q?")
		if err == nil || !strings.Contains(err.Error(), "embed question") {
			t.Errorf("Expected embed error, got %v", err)
		}
	})

	t.Run("search failure", func(t *testing.T) {
		answerer := NewAnswerer(&stubEmbedder{}, &stubSearcher{err: errors.New("down")}, &stubChat{}, nil)
		_, err := answerer.Answer(context.Background(), "q?")
		if err == nil || !strings.Contains(err.Error(), "retrieve context") {
			t.Errorf("Expected retrieval error, got %v", err)
		}
	})

	t.Run("chat failure", func(t *testing.T) {
		answerer := NewAnswerer(&stubEmbedder{}, &stubSearcher{}, &stubChat{err: errors.New("down")}, nil)
		_, err := answerer.Answer(context.Background(), "q?")
		if err == nil || !strings.Contains(err.Error(), "generate answer") {
			t.Errorf("Expected generation error, got %v", err)
		}
	})
}

// TestFormatSources tests URL-based deduplication and skipping.
func TestFormatSources(t *testing.T) {
	records := []storage.ScoredRecord{
		scored("Chunk one.", "https://example.com/a", "Post A"),
		scored("Chunk two.", "https://example.com/a", "Post A"),
		scored("Chunk three.", "https://example.com/b", "Post B"),
		scored("Orphan chunk.", "", "No URL"),
	}

	sources := formatSources(records)
	if len(sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d: %+v", len(sources), sources)
	}

	// First occurrence wins for duplicated URLs, order follows ranking.
	if sources[0].URL != "https://example.com/a" || sources[0].Excerpt != "Chunk one." {
		t.Errorf("Source 0 wrong: %+v", sources[0])
	}
	if sources[1].URL != "https://example.com/b" {
		t.Errorf("Source 1 wrong: %+v", sources[1])
	}
}

// TestTruncateExcerpt tests word-boundary truncation.
func TestTruncateExcerpt(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		if got := truncateExcerpt("short", 150); got != "short" {
			t.Errorf("Expected unchanged text, got %q", got)
		}
	})

	t.Run("cuts at word boundary", func(t *testing.T) {
		got := truncateExcerpt("alpha beta gamma delta", 16)
		if got != "alpha beta..." {
			t.Errorf("Expected cut at word boundary, got %q", got)
		}
	})

	t.Run("single long word", func(t *testing.T) {
		got := truncateExcerpt(strings.Repeat("x", 200), 150)
		if got != strings.Repeat("x", 150)+"..." {
			t.Errorf("Expected hard cut for unbroken text, got %q", got)
		}
	})
}
