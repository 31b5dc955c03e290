package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/timmy/portdesk/internal/api"
	"github.com/timmy/portdesk/internal/api/handler"
	"github.com/timmy/portdesk/internal/chunker"
	"github.com/timmy/portdesk/internal/config"
	"github.com/timmy/portdesk/internal/dispatch"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/llm"
	"github.com/timmy/portdesk/internal/logger"
	"github.com/timmy/portdesk/internal/repository"
	"github.com/timmy/portdesk/internal/service"
	"github.com/timmy/portdesk/internal/storage"
)

func main() {
	logCfg := logger.ConfigFromEnv()
	logCfg.ServiceName = "portdesk-api"
	appLogger := logger.New(logCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH is used by deployments; empty falls back to ./configs
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
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

	rules := service.NewRuleEngine()
	backend, mode := reasoningBackend(cfg, rules)

	var contacts []domain.Contact
	if cfg.Analysis.ContactsFile != "" {
		contacts, err = service.LoadContacts(cfg.Analysis.ContactsFile)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to load contacts")
		}
	}

	analysis := service.NewAnalysisService(
		retrieval,
		service.NewEvidenceCollector(repository.NewEvidenceRepository(db), rules,
			cfg.Analysis.EDIWindowHours, cfg.Analysis.RecentWindowHours),
		backend,
		service.NewEscalationResolver(contacts),
		cfg.Analysis.TopK,
	)

	jobStore, err := jobRepository(cfg, db)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize job store")
	}

	pool := dispatch.New(dispatch.Config{
		Workers:     cfg.Jobs.Workers,
		QueueSize:   cfg.Jobs.QueueSize,
		EnqueueWait: cfg.Jobs.EnqueueWait,
	})
	pool.Start(ctx)

	ledger := service.NewJobLedger(jobStore, pool)
	ledger.UseRunner(service.NewIncidentRunner(analysis, ledger))

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go runCleanup(cleanupCtx, ledger, cfg.Jobs.Retention, cfg.Jobs.CleanupEvery)

	checks := map[string]handler.Check{
		"database":     func(ctx context.Context) error { return pingDB(ctx, db) },
		"vector_index": qdrantRepo.Ping,
	}
	if fb, ok := backend.(*service.FallbackBackend); ok {
		checks["reasoning"] = fb.Status
	}
	router := api.SetupRouter(api.Handlers{
		Incidents: handler.NewIncidentHandler(ledger),
		RAG:       handler.NewRAGHandler(retrieval, objectStorage, cfg.Analysis.DataDir),
		Health:    handler.NewHealthHandler(string(mode), checks),
	}, cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":           cfg.Server.Port,
			"mode":           cfg.Server.Mode,
			"reasoning_mode": mode,
			"job_store":      cfg.Jobs.Store,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// queued and running analyses drain until the timeout
	if err := pool.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Worker pool did not drain")
	}

	appLogger.Info("Server exited")
}

// reasoningBackend returns the delegated backend guarded by the
// deterministic one, or the deterministic backend alone when no model is
// configured.
func reasoningBackend(cfg *config.Config, rules *service.RuleEngine) (service.ReasoningBackend, domain.AnalysisMode) {
	deterministic := service.NewDeterministicBackend(rules)
	if !cfg.Reasoning.Enabled {
		return deterministic, domain.ModeDeterministic
	}
	model, err := llm.NewModel(&cfg.Reasoning)
	if err != nil {
		logger.GetDefault().WithError(err).Warn("Reasoning model unavailable, using deterministic analysis")
		return deterministic, domain.ModeDeterministic
	}
	return &service.FallbackBackend{
		Primary:   service.NewDelegatedBackend(model),
		Secondary: deterministic,
	}, domain.ModeDelegated
}

func jobRepository(cfg *config.Config, db *gorm.DB) (service.JobRepository, error) {
	switch cfg.Jobs.Store {
	case "sql":
		return repository.NewJobRepository(db), nil
	case "redis":
		rdb := repository.NewRedisClient(&repository.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return repository.NewRedisJobRepository(rdb, cfg.Redis.KeyPrefix), nil
	default:
		return repository.NewMemoryJobRepository(), nil
	}
}

func runCleanup(ctx context.Context, ledger *service.JobLedger, retention, every time.Duration) {
	if retention <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ledger.Cleanup(ctx, retention); err != nil {
				logger.CtxWarn(ctx, "job cleanup failed: %v", err)
			}
		}
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
