package domain

type SearchFilter struct {
	SourceType SourceType
}

// RetrievedChunk is a per-query retrieval result. Not persisted.
type RetrievedChunk struct {
	ChunkID    string     `json:"chunk_id"`
	DocumentID string     `json:"document_id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	SourceType SourceType `json:"source_type"`
	Location   string     `json:"location,omitempty"`
	Text       string     `json:"text"`
	Score      float64    `json:"score"`
	Rank       int        `json:"rank"`
}

// Citation links a piece of a generated answer back to its source document.
type Citation struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
}

// Answer is the query-path result. Grounded is false when no chunk met the
// similarity threshold; that is a valid outcome, not an error, and such an
// answer never carries citations.
type Answer struct {
	Text      string           `json:"text"`
	Grounded  bool             `json:"grounded"`
	Citations []Citation       `json:"citations"`
	Sources   []RetrievedChunk `json:"sources"`
}
