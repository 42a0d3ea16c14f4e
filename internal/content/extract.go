package content

import (
	"html"
	"regexp"
	"strings"
)

// blockPolicy decides how one block type contributes extracted text.
type blockPolicy int

const (
	// policyText emits the block's cleaned inner markup as one unit.
	policyText blockPolicy = iota
	// policyContainer emits nothing itself and recurses into children.
	policyContainer
	// policyMedia emits an alt-text placeholder plus any caption.
	policyMedia
	// policyCaption emits caption text only.
	policyCaption
)

// blockPolicies maps block types to extraction policies. Types not
// listed here fall through to a best-effort default that emits cleaned
// inner markup and recurses into children.
var blockPolicies = map[string]blockPolicy{
	"core/paragraph":    policyText,
	"core/heading":      policyText,
	"core/list":         policyText,
	"core/list-item":    policyText,
	"core/quote":        policyText,
	"core/pullquote":    policyText,
	"core/verse":        policyText,
	"core/preformatted": policyText,
	"core/code":         policyText,
	"core/table":        policyText,

	"core/columns":    policyContainer,
	"core/column":     policyContainer,
	"core/group":      policyContainer,
	"core/cover":      policyContainer,
	"core/media-text": policyContainer,

	"core/image":   policyMedia,
	"core/gallery": policyMedia,

	"core/embed": policyCaption,
	"core/video": policyCaption,
	"core/audio": policyCaption,
}

// normalizeBlockName expands shorthand names to the core namespace.
func normalizeBlockName(name string) string {
	if name != "" && !strings.Contains(name, "/") {
		return "core/" + name
	}
	return name
}

var (
	lineBreakTags  = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseTags = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr)>`)
	anyTag         = regexp.MustCompile(`(?s)<[^>]*>`)
	shortcodes     = regexp.MustCompile(`\[/?[a-zA-Z][^\[\]\n]*\]`)
	horizSpace     = regexp.MustCompile(`[ \t]+`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// Extractor converts documents into clean linear text suitable for
// chunking and embedding.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the document's clean text: title, then excerpt if
// present, then the body, separated by blank lines. The output contains
// no markup and is stable under re-extraction.
func (e *Extractor) Extract(doc *Document) string {
	var parts []string

	if doc.Title != "" {
		parts = append(parts, doc.Title)
	}
	if doc.Excerpt != "" {
		if excerpt := CleanText(doc.Excerpt); excerpt != "" {
			parts = append(parts, excerpt)
		}
	}
	if body := e.extractBody(doc.Content); body != "" {
		parts = append(parts, body)
	}

	return strings.Join(parts, "\n\n")
}

func (e *Extractor) extractBody(markup string) string {
	if !HasBlocks(markup) {
		return CleanText(markup)
	}

	var units []string
	for _, block := range ParseBlocks(markup) {
		if text := e.extractBlock(block); text != "" {
			units = append(units, text)
		}
	}
	return strings.Join(units, "\n\n")
}

// extractBlock applies the per-type policy to one block and returns its
// text contribution, which may combine several units joined by newlines.
func (e *Extractor) extractBlock(block Block) string {
	// Blocks with no type and no markup contribute nothing.
	if block.Name == "" && strings.TrimSpace(block.InnerHTML) == "" {
		return ""
	}

	policy, known := blockPolicies[block.Name]

	var units []string
	switch {
	case known && policy == policyText:
		if text := CleanText(block.InnerHTML); text != "" {
			units = append(units, text)
		}

	case known && policy == policyContainer:
		units = append(units, e.extractChildren(block)...)

	case known && policy == policyMedia:
		if alt, ok := block.Attrs["alt"].(string); ok && alt != "" {
			units = append(units, "[Image: "+alt+"]")
		}
		if caption := CleanText(block.InnerHTML); caption != "" {
			units = append(units, caption)
		}

	case known && policy == policyCaption:
		if caption := CleanText(block.InnerHTML); caption != "" {
			units = append(units, caption)
		}

	default:
		// Unrecognized type: take any markup it carries and still
		// recurse so nested content is not silently dropped.
		if text := CleanText(block.InnerHTML); text != "" {
			units = append(units, text)
		}
		units = append(units, e.extractChildren(block)...)
	}

	return strings.Join(units, "\n")
}

func (e *Extractor) extractChildren(block Block) []string {
	var units []string
	for _, inner := range block.Inner {
		if text := e.extractBlock(inner); text != "" {
			units = append(units, text)
		}
	}
	return units
}

// CleanText strips a markup fragment down to plain text: entities
// decoded, line-break and block-closing tags converted to newlines, all
// remaining tags and shortcodes removed, whitespace normalized.
func CleanText(text string) string {
	text = html.UnescapeString(text)
	text = lineBreakTags.ReplaceAllString(text, "\n")
	text = blockCloseTags.ReplaceAllString(text, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = shortcodes.ReplaceAllString(text, "")
	text = horizSpace.ReplaceAllString(text, " ")

	// Trim spaces left on each line by tag removal, then collapse the
	// blank runs that trimming can expose.
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
