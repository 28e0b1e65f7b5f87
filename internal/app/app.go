package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drivevectorai/backend/internal/config"
	"github.com/drivevectorai/backend/internal/core"
	db "github.com/drivevectorai/backend/internal/core/database"
	"github.com/drivevectorai/backend/internal/core/drive"
	"github.com/drivevectorai/backend/internal/core/extract"
	"github.com/drivevectorai/backend/internal/core/llm"
	objectclient "github.com/drivevectorai/backend/internal/core/object-client"
	"github.com/drivevectorai/backend/internal/ingest"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/notify"
	"github.com/drivevectorai/backend/internal/scan"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	Store   core.Store
	Source  core.FileSource
	Queue   core.TaskQueue
	Orch    *ingest.Orchestrator
	Scanner *scan.Scanner
	Server  *Server

	logger   logging.Logger
	embedder core.Embedder
	enricher core.Enricher
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewDefault(cfg.Debug)

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewPostgresStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	logger.Info(appCtx, "database initialized")

	source, err := NewFileSource(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize file source: %w", err)
	}
	logger.Info(appCtx, "file source initialized", "provider", cfg.SourceProvider)

	embedder, err := NewEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	var enricher core.Enricher
	if cfg.GeminiAPIKey != "" {
		gen, err := llm.NewGeminiEnricher(appCtx, cfg.GeminiAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("initialize enricher: %w", err)
		}
		enricher = gen
	} else {
		logger.Warn(appCtx, "GEMINI_API_KEY not set, document enrichment disabled")
	}

	notifier := notify.NewStoreNotifier(store, logger)
	registry := extract.NewRegistry()

	processor := ingest.NewProcessor(store, source, registry, embedder, enricher, notifier, logger, ingest.ProcessorConfig{
		EmbedCharLimit:  cfg.EmbedCharLimit,
		SnippetLength:   cfg.SnippetLength,
		DownloadTimeout: cfg.DownloadTimeout,
		EmbedTimeout:    cfg.EmbedTimeout,
		StoreTimeout:    cfg.StoreTimeout,
	})
	runner, err := ingest.NewTaskRunner(processor, logger, ingest.RunnerConfig{
		Workers:     cfg.WorkerCount,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
		TaskTimeout: cfg.TaskTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize task runner: %w", err)
	}

	orch := ingest.NewOrchestrator(store, source, runner, notifier, logger)
	scanner := scan.NewScanner(store, source, registry, notifier, logger)
	server := NewServer(cfg, store, embedder, orch, scanner, logger)

	return &App{
		Store:    store,
		Source:   source,
		Queue:    runner,
		Orch:     orch,
		Scanner:  scanner,
		Server:   server,
		logger:   logger,
		embedder: embedder,
		enricher: enricher,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down in dependency
// order: server first, then the task queue drain, then the store.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close drains in-flight tasks and releases every client.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if c, ok := a.embedder.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := a.enricher.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// NewFileSource picks the file source from SOURCE_PROVIDER. Google Drive is
// the default.
func NewFileSource(ctx context.Context, cfg *config.Config) (core.FileSource, error) {
	switch cfg.SourceProvider {
	case "s3":
		return objectclient.NewS3Source(ctx, cfg)
	case "", "drive":
		return drive.NewSource(ctx, cfg.DriveCredentials)
	default:
		return nil, fmt.Errorf("unknown SOURCE_PROVIDER %q", cfg.SourceProvider)
	}
}

// NewEmbedder picks the embedding backend from EMBED_PROVIDER. Gemini is the
// default.
func NewEmbedder(ctx context.Context, cfg *config.Config) (core.Embedder, error) {
	switch cfg.EmbedProvider {
	case "openai":
		return llm.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel, cfg.EmbedDim)
	case "", "gemini":
		return llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}
