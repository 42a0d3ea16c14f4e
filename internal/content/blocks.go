package content

import (
	"encoding/json"
	"regexp"
	"strings"
)

// blockDelim matches block comment delimiters: openers with optional
// JSON attributes, closers, and self-closing markers.
// Groups: 1=closer slash, 2=block name, 3=attrs JSON, 4=self-closing slash.
var blockDelim = regexp.MustCompile(`(?s)<!--\s+(/)?wp:([a-zA-Z0-9][a-zA-Z0-9_/-]*)\s*(\{.*?\})?\s*(/)?-->`)

// HasBlocks reports whether the markup contains block delimiters.
func HasBlocks(markup string) bool {
	return strings.Contains(markup, "<!-- wp:")
}

// ParseBlocks parses comment-delimited block markup into a block tree.
// Freeform HTML between blocks becomes a nameless block. The parser
// never fails: unclosed blocks consume to end of input, stray closers
// are ignored, and unparseable attribute JSON yields nil attrs.
func ParseBlocks(markup string) []Block {
	matches := blockDelim.FindAllStringSubmatchIndex(markup, -1)

	var top []Block
	var stack []*Block

	emit := func(b Block) {
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.Inner = append(parent.Inner, b)
			return
		}
		top = append(top, b)
	}

	text := func(s string) {
		if len(stack) > 0 {
			stack[len(stack)-1].InnerHTML += s
			return
		}
		if strings.TrimSpace(s) != "" {
			top = append(top, Block{InnerHTML: s})
		}
	}

	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			text(markup[pos:m[0]])
		}
		pos = m[1]

		closer := m[2] >= 0
		name := normalizeBlockName(markup[m[4]:m[5]])
		selfClosing := m[8] >= 0

		var attrs map[string]any
		if m[6] >= 0 {
			// Attrs stay nil when the JSON is malformed.
			_ = json.Unmarshal([]byte(markup[m[6]:m[7]]), &attrs)
		}

		switch {
		case closer:
			// Pop the innermost matching frame; ignore stray closers.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Name == name {
					unwindTo(&stack, i, emit)
					break
				}
			}
		case selfClosing:
			emit(Block{Name: name, Attrs: attrs})
		default:
			stack = append(stack, &Block{Name: name, Attrs: attrs})
		}
	}

	if pos < len(markup) {
		text(markup[pos:])
	}

	// Unclosed blocks consume to end of input.
	unwindTo(&stack, 0, func(b Block) { top = append(top, b) })

	return top
}

// unwindTo pops frames down to depth i, attaching each popped block to
// its parent, then emits the frame at depth i itself.
func unwindTo(stack *[]*Block, i int, emit func(Block)) {
	s := *stack
	for len(s) > i+1 {
		child := s[len(s)-1]
		s = s[:len(s)-1]
		parent := s[len(s)-1]
		parent.Inner = append(parent.Inner, *child)
	}
	if len(s) > i {
		blk := s[len(s)-1]
		s = s[:len(s)-1]
		*stack = s
		emit(*blk)
		return
	}
	*stack = s
}
