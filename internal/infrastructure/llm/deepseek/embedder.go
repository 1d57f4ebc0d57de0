package deepseek

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/resilience"
)

const defaultEmbedBatchSize = 20

// Embedder converts texts into fixed-dimension vectors. Batches above the
// provider limit are split deterministically in input order, and requests go
// through a token-bucket limiter before hitting the provider.
type Embedder struct {
	client    *Client
	executor  *resilience.Executor
	limiter   *rate.Limiter
	batchSize int
}

func NewEmbedder(client *Client, executor *resilience.Executor, batchSize int, requestsPerSecond float64) *Embedder {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Embedder{
		client:    client,
		executor:  executor,
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: batchSize,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, wrapProviderError(domain.ErrEmbeddingProvider, "embed batch", err)
		}
		out = append(out, vectors...)
	}

	if len(out) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrEmbeddingProvider,
			"embed",
			fmt.Errorf("vectors/texts mismatch: %d/%d", len(out), len(texts)),
		)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingProvider, "embed query", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": batch,
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	call := func(callCtx context.Context) error {
		if err := e.limiter.Wait(callCtx); err != nil {
			return err
		}
		response.Data = nil
		return e.client.postJSON(callCtx, "/v1/embeddings", request, &response, "embed")
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "deepseek.embed", call, classifyProviderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	if len(response.Data) != len(batch) {
		return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(response.Data), len(batch))
	}

	// The provider may reorder; the index field restores input order.
	vectors := make([][]float32, len(batch))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, fmt.Errorf("provider returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
