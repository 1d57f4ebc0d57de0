package ports

import (
	"context"
	"io"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

// DocumentIngestor is the inbound contract for the write path: register a
// document and run it through the chunk/embed/index pipeline, either inline
// or deferred to a worker via the reindex queue.
type DocumentIngestor interface {
	Ingest(ctx context.Context, doc domain.Document) (domain.IngestResult, error)
	Enqueue(ctx context.Context, doc domain.Document) (string, error)
	Upload(ctx context.Context, doc domain.Document, filename string, body io.Reader) (string, error)
}

// QueryService is the inbound contract for retrieval-augmented answering.
type QueryService interface {
	Answer(ctx context.Context, question string, limit int, filter domain.SearchFilter) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for document catalog state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor resumes a single document's pipeline asynchronously.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// BatchUpdater resumes every document below the indexed stage.
type BatchUpdater interface {
	Run(ctx context.Context, force bool) (domain.BatchReport, error)
}
