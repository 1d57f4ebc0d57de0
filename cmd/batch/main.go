package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ymatsuda/marketing-rag/internal/bootstrap"
	"github.com/ymatsuda/marketing-rag/internal/config"
	"github.com/ymatsuda/marketing-rag/internal/observability/logging"
	"github.com/ymatsuda/marketing-rag/internal/observability/metrics"
)

func main() {
	force := flag.Bool("force", false, "re-run documents that are already indexed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("batch", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Long runs are scrapable while they last; the final run observation is
	// recorded regardless of outcome.
	batchMetrics := metrics.NewWorkerMetrics("batch")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: batchMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	start := time.Now()
	report, err := app.BatchUC.Run(ctx, *force)
	batchMetrics.FinishBatch("batch", time.Since(start), report.Updated, report.Skipped, report.Failed, err)
	if err != nil {
		logger.Error("batch run failed",
			"error", err,
			"scanned", report.Scanned,
			"updated", report.Updated,
			"failed", report.Failed,
		)
		os.Exit(1)
	}

	logger.Info("batch run complete",
		"duration_s", time.Since(start).Seconds(),
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"updated", report.Updated,
		"failed", report.Failed,
		"force", *force,
	)
	if report.Failed > 0 {
		os.Exit(1)
	}
}
