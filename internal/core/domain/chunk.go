package domain

import "fmt"

// ChunkSpan is the chunker's output: a slice of the document text with its
// rune offsets preserved, so citations can point back at exact locations.
type ChunkSpan struct {
	Text  string
	Start int
	End   int
}

// Chunk is the unit of embedding and retrieval. IDs are deterministic per
// document so re-ingestion replaces rather than duplicates.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Index       int       `json:"index"`
	Text        string    `json:"text"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Location    string    `json:"location,omitempty"`
	Embedding   []float32 `json:"-"`

	// Parent document metadata, denormalized into the index payload so a
	// retrieved chunk never needs a catalog lookup to build its citation.
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	SourceType SourceType `json:"source_type"`
}

// ChunkID builds the deterministic id for a chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%04d", documentID, index)
}
