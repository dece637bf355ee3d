package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/genesilico/trf-intake/internal/agent"
	"github.com/genesilico/trf-intake/internal/async"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/export"
	"github.com/genesilico/trf-intake/internal/extract"
	"github.com/genesilico/trf-intake/internal/intake"
	"github.com/genesilico/trf-intake/internal/llm/openai"
	"github.com/genesilico/trf-intake/internal/ocr"
	"github.com/genesilico/trf-intake/internal/pipeline"
	"github.com/genesilico/trf-intake/internal/repository"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	sch, err := schema.Default()
	if err != nil {
		logger.Error("load field schema", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	inferencer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	textExtractor := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCR.BaseURL,
		APIKey:  cfg.OCR.APIKey,
		Timeout: cfg.OCR.Timeout,
	}, logger)

	extractor := extract.New(sch, inferencer, logger)
	processor := pipeline.NewProcessor(store, textExtractor, extractor, sch, logger)
	reasoner := agent.NewReasoner(sch, inferencer, cfg.Agent, logger)
	exporter := export.NewService(sch, logger)
	svc := intake.NewService(store, processor, reasoner, exporter, sch, logger)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: server.New(svc, queue, logger).Router(),
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *common.Config) (repository.Store, error) {
	switch cfg.Store.Backend {
	case "mongo":
		return repository.NewMongoStore(ctx, cfg.Store.MongoURI, cfg.Store.MongoDB, cfg.Store.DialTimeout)
	case "sqlite":
		return repository.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
	case "memory":
		return repository.NewMemStore(), nil
	default:
		return nil, common.WrapError(common.ErrInvalidInput, "unknown store backend "+cfg.Store.Backend)
	}
}
