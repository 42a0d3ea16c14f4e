// Package content models host-CMS documents and turns their
// block-structured bodies into clean linear text.
package content

import "time"

// StatusPublished is the only status that participates in indexing.
const StatusPublished = "publish"

// Document is a content item owned by the host CMS. This system only
// reads documents; it never writes them back.
type Document struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Published reports whether the document is visible to readers.
func (d *Document) Published() bool {
	return d.Status == StatusPublished
}

// Block is one node of a recursive document-block tree. Leaf blocks
// carry markup in InnerHTML; container blocks carry children in Inner.
type Block struct {
	Name      string
	InnerHTML string
	Attrs     map[string]any
	Inner     []Block
}
