package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
)

// IngestUseCase runs the write path: register a document in the catalog and
// drive it through fetch -> chunk -> embed -> index. Every stage transition
// is persisted so an interrupted document resumes from its last success.
type IngestUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.EmbeddingProvider
	index     ports.VectorIndex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewIngestUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.EmbeddingProvider,
	index ports.VectorIndex,
) *IngestUseCase {
	return &IngestUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Ingest registers the document and processes it inline.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc domain.Document) (domain.IngestResult, error) {
	prepared, err := uc.register(ctx, doc)
	if err != nil {
		return domain.IngestResult{}, err
	}
	return uc.process(ctx, prepared)
}

// Enqueue registers the document and hands processing to a worker through
// the reindex queue. Returns the document id.
func (uc *IngestUseCase) Enqueue(ctx context.Context, doc domain.Document) (string, error) {
	prepared, err := uc.register(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := uc.queue.PublishReindex(ctx, prepared.ID); err != nil {
		return "", fmt.Errorf("publish reindex event: %w", err)
	}
	return prepared.ID, nil
}

// Upload stores a raw source file, registers a document pointing at it and
// defers processing to a worker; extraction happens in the fetch stage.
// Returns the document id.
func (uc *IngestUseCase) Upload(ctx context.Context, doc domain.Document, filename string, body io.Reader) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	key := fmt.Sprintf("%s_%s", doc.ID, sanitizeFilename(filename))

	// Validate before touching storage so a bad request leaves no file.
	candidate := doc
	candidate.StoragePath = key
	if err := validateDocument(&candidate); err != nil {
		return "", err
	}

	if err := uc.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("save source file: %w", err)
	}

	doc.StoragePath = key
	return uc.Enqueue(ctx, doc)
}

// ProcessByID resumes a cataloged document's pipeline from its current stage.
func (uc *IngestUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	_, err = uc.process(ctx, doc)
	return err
}

func (uc *IngestUseCase) register(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.RawText = strings.TrimSpace(doc.RawText)
	doc.Stage = domain.StageDiscovered
	doc.Error = ""
	doc.CreatedAt = now
	doc.UpdatedAt = now

	// The catalog keeps the original created_at across re-ingestions; mirror
	// that here so the returned document matches the stored row.
	if existing, err := uc.repo.GetByID(ctx, doc.ID); err == nil {
		doc.CreatedAt = existing.CreatedAt
	} else if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return nil, fmt.Errorf("look up document: %w", err)
	}

	// Re-registering an id supersedes the old content wholesale; the stage
	// reset forces the whole pipeline to run again.
	if err := uc.repo.Upsert(ctx, &doc); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}
	return &doc, nil
}

func validateDocument(doc *domain.Document) error {
	if !doc.SourceType.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "register document",
			fmt.Errorf("unknown source type %q", doc.SourceType))
	}
	if strings.TrimSpace(doc.Title) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "register document", errors.New("title is required"))
	}
	if strings.TrimSpace(doc.RawText) == "" && doc.StoragePath == "" {
		return domain.WrapError(domain.ErrInvalidInput, "register document",
			errors.New("either raw text or a storage path is required"))
	}
	return nil
}

func (uc *IngestUseCase) process(ctx context.Context, doc *domain.Document) (domain.IngestResult, error) {
	unlock := uc.lockDocument(doc.ID)
	defer unlock()

	if doc.Stage.Reached(domain.StageIndexed) {
		return domain.IngestResult{DocumentID: doc.ID}, nil
	}

	result, err := uc.runPipeline(ctx, doc)
	if err != nil {
		if failErr := uc.markFailed(ctx, doc, err); failErr != nil {
			return domain.IngestResult{}, fmt.Errorf("%w; record failure: %v", err, failErr)
		}
		return domain.IngestResult{}, err
	}
	return result, nil
}

func (uc *IngestUseCase) runPipeline(ctx context.Context, doc *domain.Document) (domain.IngestResult, error) {
	if !doc.Stage.Reached(domain.StageFetched) {
		if err := uc.fetch(ctx, doc); err != nil {
			return domain.IngestResult{}, err
		}
	}

	chunks, err := uc.chunk(doc)
	if err != nil {
		return domain.IngestResult{}, err
	}
	if err := uc.advance(ctx, doc, domain.StageChunked); err != nil {
		return domain.IngestResult{}, err
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return domain.IngestResult{}, err
	}
	if err := uc.advance(ctx, doc, domain.StageEmbedded); err != nil {
		return domain.IngestResult{}, err
	}

	// Deterministic chunk ids make the upsert itself idempotent, but a
	// re-chunking can shrink the chunk count, so stale entries are swept
	// first.
	if err := uc.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return domain.IngestResult{}, fmt.Errorf("sweep previous chunks: %w", err)
	}
	if err := uc.index.Upsert(ctx, chunks); err != nil {
		return domain.IngestResult{}, fmt.Errorf("index chunks: %w", err)
	}
	if err := uc.advance(ctx, doc, domain.StageIndexed); err != nil {
		return domain.IngestResult{}, err
	}

	return domain.IngestResult{
		DocumentID:        doc.ID,
		ChunksCreated:     len(chunks),
		EmbeddingsWritten: len(chunks),
	}, nil
}

// fetch resolves the document's raw text, extracting it from the stored
// source file when it was not supplied inline, and persists it so later
// stages can resume without the source file.
func (uc *IngestUseCase) fetch(ctx context.Context, doc *domain.Document) error {
	text := strings.TrimSpace(doc.RawText)
	if text == "" {
		extracted, err := uc.extractor.Extract(ctx, doc)
		if err != nil {
			return fmt.Errorf("extract text: %w", err)
		}
		text = strings.TrimSpace(extracted)
	}
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "fetch document", errors.New("empty document text"))
	}

	doc.RawText = text
	doc.Stage = domain.StageFetched
	doc.Error = ""
	doc.UpdatedAt = time.Now().UTC()
	if err := uc.repo.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("persist fetched text: %w", err)
	}
	return nil
}

func (uc *IngestUseCase) chunk(doc *domain.Document) ([]domain.Chunk, error) {
	spans, err := uc.chunker.Split(doc.RawText)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(spans) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	chunks := make([]domain.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = domain.Chunk{
			ID:          domain.ChunkID(doc.ID, i),
			DocumentID:  doc.ID,
			Index:       i,
			Text:        span.Text,
			StartOffset: span.Start,
			EndOffset:   span.End,
			Location:    chunkLocation(doc, span.Start),
			Title:       doc.Title,
			URL:         doc.URL,
			SourceType:  doc.SourceType,
		}
	}
	return chunks, nil
}

func (uc *IngestUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrEmbeddingProvider,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

func (uc *IngestUseCase) advance(ctx context.Context, doc *domain.Document, stage domain.IngestStage) error {
	if err := uc.repo.UpdateStage(ctx, doc.ID, stage, ""); err != nil {
		return fmt.Errorf("set stage=%s: %w", stage, err)
	}
	doc.Stage = stage
	doc.Error = ""
	return nil
}

// markFailed records the error while leaving the stage at the last success,
// so the daily batch resumes the document from there.
func (uc *IngestUseCase) markFailed(ctx context.Context, doc *domain.Document, processErr error) error {
	return uc.repo.UpdateStage(ctx, doc.ID, doc.Stage, processErr.Error())
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "source.bin"
	}
	return base
}

// lockDocument serializes pipeline runs per document id. Concurrent ingest
// of the same id would otherwise interleave index sweeps and upserts.
func (uc *IngestUseCase) lockDocument(id string) func() {
	uc.mu.Lock()
	lock, ok := uc.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		uc.locks[id] = lock
	}
	uc.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// chunkLocation maps a chunk's start offset to a human-meaningful position
// in the source: a playback timestamp for videos, a page number for PDFs.
func chunkLocation(doc *domain.Document, start int) string {
	switch doc.SourceType {
	case domain.SourceVideo:
		seconds := -1.0
		for _, seg := range doc.Segments {
			if seg.Offset > start {
				break
			}
			seconds = seg.Seconds
		}
		if seconds < 0 {
			return ""
		}
		return fmt.Sprintf("t=%ds", int(seconds))
	case domain.SourcePDF:
		page := 0
		for i, offset := range doc.PageOffsets {
			if offset > start {
				break
			}
			page = i + 1
		}
		if page == 0 {
			return ""
		}
		return fmt.Sprintf("page=%d", page)
	}
	return ""
}
