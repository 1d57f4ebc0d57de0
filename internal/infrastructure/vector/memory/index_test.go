package memory

import (
	"context"
	"testing"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

func chunk(id, docID string, source domain.SourceType, vec []float32) domain.Chunk {
	return domain.Chunk{
		ID:         id,
		DocumentID: docID,
		SourceType: source,
		Text:       "text " + id,
		Embedding:  vec,
	}
}

func TestQueryReturnsAtMostLimitOrderedByScore(t *testing.T) {
	idx := New()
	err := idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{1, 0}),
		chunk("b:0000", "b", domain.SourceVideo, []float32{0, 1}),
		chunk("c:0000", "c", domain.SourceVideo, []float32{0.9, 0.1}),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	results, err := idx.Query(context.Background(), []float32{1, 0}, 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "a:0000" || results[1].ChunkID != "c:0000" {
		t.Fatalf("unexpected order: %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("scores not descending: %f, %f", results[0].Score, results[1].Score)
	}
}

func TestQueryBreaksTiesByInsertionOrder(t *testing.T) {
	idx := New()
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("late-but-first:0000", "x", domain.SourceVideo, []float32{1, 0}),
		chunk("same-vector:0000", "y", domain.SourceVideo, []float32{1, 0}),
	})

	results, err := idx.Query(context.Background(), []float32{1, 0}, 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if results[0].ChunkID != "late-but-first:0000" {
		t.Fatalf("expected insertion-order tie break, got %s first", results[0].ChunkID)
	}
}

func TestQueryUnderfilledIndexIsNotAnError(t *testing.T) {
	idx := New()
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{1, 0}),
	})

	results, err := idx.Query(context.Background(), []float32{1, 0}, 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected single result, got %d", len(results))
	}
}

func TestUpsertIsIdempotentOnChunkID(t *testing.T) {
	idx := New()
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{1, 0}),
	})
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{0, 1}),
	})

	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry after re-upsert, got %d", idx.Len())
	}
	results, _ := idx.Query(context.Background(), []float32{0, 1}, 1, domain.SearchFilter{})
	if len(results) != 1 || results[0].Score < 0.99 {
		t.Fatalf("expected replaced embedding to win: %+v", results)
	}
}

func TestDeleteByDocumentRemovesAllChunks(t *testing.T) {
	idx := New()
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{1, 0}),
		chunk("a:0001", "a", domain.SourceVideo, []float32{0, 1}),
		chunk("b:0000", "b", domain.SourcePDF, []float32{1, 1}),
	})

	if err := idx.DeleteByDocument(context.Background(), "a"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", idx.Len())
	}
}

func TestQueryFiltersBySourceType(t *testing.T) {
	idx := New()
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{1, 0}),
		chunk("b:0000", "b", domain.SourcePDF, []float32{1, 0}),
	})

	results, err := idx.Query(context.Background(), []float32{1, 0}, 10, domain.SearchFilter{SourceType: domain.SourcePDF})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].SourceType != domain.SourcePDF {
		t.Fatalf("filter not applied: %+v", results)
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	idx := New()
	_ = idx.Upsert(context.Background(), []domain.Chunk{
		chunk("a:0000", "a", domain.SourceVideo, []float32{1, 0}),
	})
	err := idx.Upsert(context.Background(), []domain.Chunk{
		chunk("b:0000", "b", domain.SourceVideo, []float32{1, 0, 0}),
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
