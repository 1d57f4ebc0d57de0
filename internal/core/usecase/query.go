package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
)

const (
	defaultTopK           = 5
	defaultScoreThreshold = 0.25
)

// QueryUseCase runs the read path: embed the question, retrieve the nearest
// chunks, assemble a prompt and generate a cited answer.
type QueryUseCase struct {
	embedder  ports.EmbeddingProvider
	index     ports.VectorIndex
	generator ports.ChatProvider
	assembler *PromptAssembler
	threshold float64
	topK      int
}

func NewQueryUseCase(
	embedder ports.EmbeddingProvider,
	index ports.VectorIndex,
	generator ports.ChatProvider,
	assembler *PromptAssembler,
	threshold float64,
	topK int,
) *QueryUseCase {
	if assembler == nil {
		assembler = NewPromptAssembler(0)
	}
	if threshold <= 0 {
		threshold = defaultScoreThreshold
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &QueryUseCase{
		embedder:  embedder,
		index:     index,
		generator: generator,
		assembler: assembler,
		threshold: threshold,
		topK:      topK,
	}
}

func (uc *QueryUseCase) Answer(
	ctx context.Context,
	question string,
	limit int,
	filter domain.SearchFilter,
) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", errors.New("empty question"))
	}
	if limit <= 0 {
		limit = uc.topK
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	retrieved, err := uc.index.Query(ctx, queryVector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	relevant := uc.aboveThreshold(retrieved)
	system, user, prompted := uc.assembler.Build(question, relevant)

	answerText, err := uc.generator.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if len(prompted) == 0 {
		return &domain.Answer{Text: answerText, Grounded: false}, nil
	}

	cited := parseCitations(answerText, prompted)
	citations := make([]domain.Citation, len(cited))
	for i, chunk := range cited {
		citations[i] = domain.Citation{
			Title:    chunk.Title,
			URL:      citationURL(chunk),
			Location: chunk.Location,
		}
	}

	return &domain.Answer{
		Text:      answerText,
		Grounded:  true,
		Citations: citations,
		Sources:   prompted,
	}, nil
}

// aboveThreshold drops chunks below the similarity floor and re-ranks the
// survivors 1..n in score order.
func (uc *QueryUseCase) aboveThreshold(retrieved []domain.RetrievedChunk) []domain.RetrievedChunk {
	var out []domain.RetrievedChunk
	for _, chunk := range retrieved {
		if chunk.Score < uc.threshold {
			continue
		}
		chunk.Rank = len(out) + 1
		out = append(out, chunk)
	}
	return out
}
