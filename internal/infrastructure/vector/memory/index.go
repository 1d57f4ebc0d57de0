package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

// Index is an in-process cosine-similarity store with the same contract as
// the Chroma adapter. Ties are broken by insertion order, so queries are
// deterministic. Used by tests and single-node local runs.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
	dim     int
	nextSeq int
}

type entry struct {
	chunk domain.Chunk
	seq   int
}

func New() *Index {
	return &Index{byID: make(map[string]int)}
}

func (x *Index) Upsert(_ context.Context, chunks []domain.Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "upsert chunks",
				fmt.Errorf("chunk %s has no embedding", chunk.ID))
		}
		if x.dim == 0 {
			x.dim = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != x.dim {
			return domain.WrapError(domain.ErrInvalidInput, "upsert chunks",
				fmt.Errorf("chunk %s embedding dimension %d != index dimension %d", chunk.ID, len(chunk.Embedding), x.dim))
		}

		if pos, ok := x.byID[chunk.ID]; ok {
			// Replacement keeps the original insertion order.
			x.entries[pos].chunk = chunk
			continue
		}
		x.byID[chunk.ID] = len(x.entries)
		x.entries = append(x.entries, entry{chunk: chunk, seq: x.nextSeq})
		x.nextSeq++
	}
	return nil
}

func (x *Index) DeleteByDocument(_ context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := x.entries[:0]
	for _, e := range x.entries {
		if e.chunk.DocumentID == documentID {
			continue
		}
		kept = append(kept, e)
	}
	x.entries = kept

	x.byID = make(map[string]int, len(x.entries))
	for i, e := range x.entries {
		x.byID[e.chunk.ID] = i
	}
	return nil
}

func (x *Index) Query(
	_ context.Context,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}

	type scored struct {
		entry entry
		score float64
	}
	candidates := make([]scored, 0, len(x.entries))
	for _, e := range x.entries {
		if filter.SourceType != "" && e.chunk.SourceType != filter.SourceType {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: cosine(vector, e.chunk.Embedding)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.seq < candidates[j].entry.seq
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		chunk := c.entry.chunk
		out = append(out, domain.RetrievedChunk{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Title:      chunk.Title,
			URL:        chunk.URL,
			SourceType: chunk.SourceType,
			Location:   chunk.Location,
			Text:       chunk.Text,
			Score:      c.score,
		})
	}
	return out, nil
}

// Len reports the number of stored chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
