package usecase

import (
	"context"
	"log/slog"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
)

const defaultBatchLimit = 500

// BatchUpdateUseCase resumes every document below the indexed stage, oldest
// first. With force it re-runs already-indexed documents from their fetched
// text, which rebuilds their index entries in place.
type BatchUpdateUseCase struct {
	repo      ports.DocumentRepository
	processor ports.DocumentProcessor
	logger    *slog.Logger
	limit     int
}

func NewBatchUpdateUseCase(
	repo ports.DocumentRepository,
	processor ports.DocumentProcessor,
	logger *slog.Logger,
	limit int,
) *BatchUpdateUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	return &BatchUpdateUseCase{
		repo:      repo,
		processor: processor,
		logger:    logger,
		limit:     limit,
	}
}

func (uc *BatchUpdateUseCase) Run(ctx context.Context, force bool) (domain.BatchReport, error) {
	var report domain.BatchReport

	docs, err := uc.listCandidates(ctx, force)
	if err != nil {
		return report, err
	}
	report.Scanned = len(docs)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if !force && doc.Stage.Reached(domain.StageIndexed) {
			report.Skipped++
			continue
		}

		if force && doc.Stage.Reached(domain.StageFetched) {
			// Knock the stage back to fetched so the pipeline re-chunks
			// and re-indexes from the persisted text.
			if err := uc.repo.UpdateStage(ctx, doc.ID, domain.StageFetched, ""); err != nil {
				uc.logger.Error("reset document stage", "document_id", doc.ID, "error", err)
				report.Failed++
				continue
			}
		}

		if err := uc.processor.ProcessByID(ctx, doc.ID); err != nil {
			uc.logger.Error("batch document update failed",
				"document_id", doc.ID,
				"stage", string(doc.Stage),
				"error", err,
			)
			report.Failed++
			continue
		}

		uc.logger.Info("batch document updated", "document_id", doc.ID)
		report.Updated++
	}

	return report, nil
}

func (uc *BatchUpdateUseCase) listCandidates(ctx context.Context, force bool) ([]domain.Document, error) {
	if force {
		return uc.repo.ListAll(ctx, uc.limit)
	}
	return uc.repo.ListPending(ctx, uc.limit)
}
