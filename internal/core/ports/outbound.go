package ports

import (
	"context"
	"io"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

// DocumentRepository persists and reads document catalog state.
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStage(ctx context.Context, id string, stage domain.IngestStage, errMessage string) error
	ListPending(ctx context.Context, limit int) ([]domain.Document, error)
	ListAll(ctx context.Context, limit int) ([]domain.Document, error)
}

// ObjectStorage stores raw source files awaiting text extraction.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes document reindex events.
type MessageQueue interface {
	PublishReindex(ctx context.Context, documentID string) error
	SubscribeReindex(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor produces the raw text of a stored source file.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits raw text into ordered overlapping spans with offsets.
type Chunker interface {
	Split(text string) ([]domain.ChunkSpan, error)
}

// EmbeddingProvider builds vectors for chunk texts and query text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatProvider generates the final answer text from an assembled prompt.
type ChatProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// VectorIndex stores chunk embeddings and answers nearest-neighbor queries.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Query(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}
