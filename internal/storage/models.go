package storage

import "time"

// Record is one embedded chunk stored in the vector index. Its ID is a
// deterministic UUID derived from (document id, chunk index, chunk
// text), so re-indexing unchanged content overwrites in place.
type Record struct {
	ID      string
	Vector  []float32
	Content string
	Meta    RecordMeta
}

// RecordMeta is the payload stored alongside each record. DocumentID is
// indexed so a document's records can be purged in one filtered delete.
type RecordMeta struct {
	DocumentID  string
	Title       string
	Type        string
	PublishedAt time.Time
	URL         string
	ChunkIndex  int
	TotalChunks int
}

// ScoredRecord is a Record returned from similarity search with its
// cosine similarity score.
type ScoredRecord struct {
	Record Record
	Score  float32
}
