// Package chunker splits clean document text into overlapping,
// sentence-aligned chunks sized for embedding.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxSize is the default chunk size in characters.
	DefaultMaxSize = 800
	// DefaultOverlap is the default number of trailing characters
	// carried from one chunk into the next.
	DefaultOverlap = 100
)

// sentenceBoundary matches whitespace that follows terminal
// punctuation. Splitting on it keeps the punctuation with its sentence.
var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// Split breaks text into chunks of at most maxSize characters without
// splitting sentences. Each chunk after the first is seeded with the
// last overlap characters of its predecessor. A single sentence longer
// than maxSize is emitted whole, oversized, rather than truncated.
//
// Split is pure: identical inputs always produce identical output.
func Split(text string, maxSize, overlap int) []string {
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxSize {
			closed := strings.TrimSpace(current.String())
			chunks = append(chunks, closed)
			current.Reset()

			if overlap > 0 {
				seed := closed
				if len(seed) > overlap {
					seed = seed[len(seed)-overlap:]
				}
				current.WriteString(seed)
				current.WriteString(" ")
			}
			current.WriteString(sentence)
			continue
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if remainder := strings.TrimSpace(current.String()); remainder != "" {
		chunks = append(chunks, remainder)
	}
	return chunks
}

// splitSentences splits text on ASCII sentence boundaries. Text with no
// terminal punctuation comes back as a single sentence.
func splitSentences(text string) []string {
	// Insert a marker after each boundary, then split on it, so the
	// punctuation stays attached to its sentence.
	marked := sentenceBoundary.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			sentences = append(sentences, part)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}
