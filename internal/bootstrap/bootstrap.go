package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ymatsuda/marketing-rag/internal/config"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
	"github.com/ymatsuda/marketing-rag/internal/core/usecase"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/chunking"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/extractor"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/llm/deepseek"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/queue/nats"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/repository/postgres"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/resilience"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/storage/localfs"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/vector/chroma"
)

type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository

	IngestUC *usecase.IngestUseCase
	QueryUC  *usecase.QueryUseCase
	BatchUC  *usecase.BatchUpdateUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Config{})
	deepseekClient := deepseek.New(cfg.DeepSeekURL, cfg.DeepSeekAPIKey, cfg.DeepSeekChatModel, cfg.DeepSeekEmbedModel)
	embedder := deepseek.NewEmbedder(deepseekClient, executor, cfg.EmbedBatch, float64(cfg.EmbedRPS))
	generator := deepseek.NewGenerator(deepseekClient, executor, 0)

	vectorIndex := chroma.New(cfg.ChromaURL, cfg.ChromaCollection)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	textExtractor := extractor.NewDispatcher(storage)

	ingestUC := usecase.NewIngestUseCase(repo, storage, queue, textExtractor, chunker, embedder, vectorIndex)
	queryUC := usecase.NewQueryUseCase(
		embedder,
		vectorIndex,
		generator,
		usecase.NewPromptAssembler(cfg.ContextBudget),
		cfg.RAGThreshold,
		cfg.RAGTopK,
	)
	batchUC := usecase.NewBatchUpdateUseCase(repo, ingestUC, logger, cfg.BatchLimit)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC: ingestUC,
		QueryUC:  queryUC,
		BatchUC:  batchUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
