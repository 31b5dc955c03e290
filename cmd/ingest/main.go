package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timmy/portdesk/internal/chunker"
	"github.com/timmy/portdesk/internal/config"
	"github.com/timmy/portdesk/internal/logger"
	"github.com/timmy/portdesk/internal/repository"
	"github.com/timmy/portdesk/internal/service"
	"github.com/timmy/portdesk/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load support documents and case logs into the vector index",
	Long: `Chunk, embed and index knowledge base documents and historical case logs.

Paths may be local files or s3://bucket/key objects in the configured bucket.

Examples:
  ingest kb ./docs/edi_runbook.docx
  ingest cases ./data/case_log.xlsx --sheet "2024"
  ingest search "COPARN segment validation" --collection case_history
  ingest upload ./data/case_log.xlsx case_logs/2024.xlsx`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "portdesk-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is the wiring shared by the subcommands.
type env struct {
	cfg       *config.Config
	retrieval *service.RetrievalService
	store     storage.ObjectStorage
	close     func()
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("init qdrant: %w", err)
	}

	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		_ = qdrantRepo.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	retrieval := service.NewRetrievalService(
		service.NewEmbeddingService(&cfg.Embedding),
		qdrantRepo,
		chunker.NewDefault(),
		service.RetrievalConfig{
			Collections:   cfg.Qdrant.Collections,
			KnowledgeBase: cfg.Chunking.KnowledgeBase,
			CaseRows:      cfg.Chunking.CaseRows,
		},
	)

	return &env{
		cfg:       cfg,
		retrieval: retrieval,
		store:     store,
		close:     func() { _ = qdrantRepo.Close() },
	}, nil
}
