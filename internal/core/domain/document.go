package domain

import "time"

type SourceType string

const (
	SourceVideo       SourceType = "video"
	SourcePDF         SourceType = "pdf"
	SourceSpreadsheet SourceType = "spreadsheet"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceVideo, SourcePDF, SourceSpreadsheet:
		return true
	}
	return false
}

// IngestStage is the per-document pipeline position. Every stage is
// idempotent: a batch run resumes a document from its last successful stage.
type IngestStage string

const (
	StageDiscovered IngestStage = "discovered"
	StageFetched    IngestStage = "fetched"
	StageChunked    IngestStage = "chunked"
	StageEmbedded   IngestStage = "embedded"
	StageIndexed    IngestStage = "indexed"
)

var stageOrder = map[IngestStage]int{
	StageDiscovered: 0,
	StageFetched:    1,
	StageChunked:    2,
	StageEmbedded:   3,
	StageIndexed:    4,
}

// Reached reports whether s is at or past other in the pipeline.
func (s IngestStage) Reached(other IngestStage) bool {
	return stageOrder[s] >= stageOrder[other]
}

// Segment maps a rune offset in a video transcript to its playback position.
// Used to turn chunk offsets into watch-URL timestamps.
type Segment struct {
	Offset  int     `json:"offset"`
	Seconds float64 `json:"seconds"`
}

type Document struct {
	ID          string      `json:"id"`
	SourceType  SourceType  `json:"source_type"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	RawText     string      `json:"raw_text,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
	Stage       IngestStage `json:"stage"`
	Error       string      `json:"error,omitempty"`

	// StoragePath points at a stored source file when the document was
	// registered without inline raw text; the fetch stage extracts it.
	StoragePath string `json:"storage_path,omitempty"`

	// Segments (video) and PageOffsets (pdf) carry location metadata for
	// citation derivation. Both optional.
	Segments    []Segment `json:"segments,omitempty"`
	PageOffsets []int     `json:"page_offsets,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type IngestResult struct {
	DocumentID        string `json:"document_id"`
	ChunksCreated     int    `json:"chunks_created"`
	EmbeddingsWritten int    `json:"embeddings_written"`
}
