package rag

import (
	"strings"

	"github.com/swayam-ai/ragsync/internal/storage"
)

// excerptLength bounds source excerpts shown alongside answers.
const excerptLength = 150

// Source is a citation backing an answer.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
	Type    string `json:"type"`
}

// formatSources projects retrieved records into citations. Records
// without a URL are skipped, duplicate URLs are collapsed keeping the
// first (highest-ranked) occurrence.
func formatSources(records []storage.ScoredRecord) []Source {
	sources := make([]Source, 0, len(records))
	seen := make(map[string]bool, len(records))

	for _, r := range records {
		url := r.Record.Meta.URL
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		sources = append(sources, Source{
			Title:   r.Record.Meta.Title,
			URL:     url,
			Excerpt: truncateExcerpt(r.Record.Content, excerptLength),
			Type:    r.Record.Meta.Type,
		})
	}

	return sources
}

// truncateExcerpt cuts text at the last word boundary before length and
// appends an ellipsis. Text within the limit is returned unmodified.
func truncateExcerpt(text string, length int) string {
	if len(text) <= length {
		return text
	}

	truncated := text[:length]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}
