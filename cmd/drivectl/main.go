package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drivevectorai/backend/internal/app"
	"github.com/drivevectorai/backend/internal/config"
	"github.com/drivevectorai/backend/internal/core"
	db "github.com/drivevectorai/backend/internal/core/database"
	"github.com/drivevectorai/backend/internal/core/extract"
	"github.com/drivevectorai/backend/internal/core/llm"
	"github.com/drivevectorai/backend/internal/ingest"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
	"github.com/drivevectorai/backend/internal/notify"
	"github.com/drivevectorai/backend/internal/scan"
)

func main() {
	cliApp := &cli.App{
		Name:  "drivectl",
		Usage: "Run document pipeline operations from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Ingest every file in a folder and wait for the job to finish",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "folder",
						Aliases:  []string{"f"},
						Usage:    "Folder id to ingest",
						Required: true,
					},
				},
			},
			{
				Name:   "scan",
				Usage:  "Recursively inventory a folder without processing files",
				Action: scanCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "folder",
						Aliases:  []string{"f"},
						Usage:    "Folder id to scan",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Scan type (full, incremental)",
						Value: "full",
					},
				},
			},
			{
				Name:      "reprocess",
				Usage:     "Re-run the pipeline for known documents",
				ArgsUsage: "<drive-file-id>...",
				Action:    reprocessCommand,
			},
			{
				Name:   "search",
				Usage:  "Semantic search over completed documents",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Free text query",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				},
			},
			{
				Name:   "jobs",
				Usage:  "List recent ingestion jobs",
				Action: jobsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs",
						Value: 20,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print pipeline statistics as JSON",
				Action: statsCommand,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// pipeline is the worker-side wiring shared by the ingest and reprocess
// commands. Unlike the API server it logs to stderr so command output on
// stdout stays parseable.
type pipeline struct {
	store    core.Store
	queue    *ingest.TaskRunner
	orch     *ingest.Orchestrator
	embedder core.Embedder
	enricher core.Enricher
}

func newPipeline(ctx context.Context, cfg *config.Config, logger logging.Logger) (*pipeline, error) {
	store, err := db.NewPostgresStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	source, err := app.NewFileSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create file source: %w", err)
	}

	embedder, err := app.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	var enricher core.Enricher
	if cfg.GeminiAPIKey != "" {
		gen, err := llm.NewGeminiEnricher(ctx, cfg.GeminiAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create enricher: %w", err)
		}
		enricher = gen
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
		return nil, fmt.Errorf("failed to create task runner: %w", err)
	}

	return &pipeline{
		store:    store,
		queue:    runner,
		orch:     ingest.NewOrchestrator(store, source, runner, notifier, logger),
		embedder: embedder,
		enricher: enricher,
	}, nil
}

func (p *pipeline) close() {
	p.queue.Close()
	if c, ok := p.embedder.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := p.enricher.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	_ = p.store.Close()
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()
	logger := logging.NewSlogLogger(slog.Default())

	p, err := newPipeline(ctx, config.LoadConfig(), logger)
	if err != nil {
		return err
	}
	defer p.close()

	job, err := p.orch.StartIngestion(ctx, c.String("folder"))
	if err != nil {
		return fmt.Errorf("failed to start ingestion: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Job %s started: %d files\n", job.JobID, job.TotalFiles)

	// Closing the queue blocks until every queued task has settled.
	p.queue.Close()

	final, err := p.store.GetIngestionJob(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	printJob(final)
	if final.FailedFiles > 0 {
		return fmt.Errorf("%d of %d files failed", final.FailedFiles, final.TotalFiles)
	}
	return nil
}

func scanCommand(c *cli.Context) error {
	scanType := c.String("type")
	if scanType != "full" && scanType != "incremental" {
		return fmt.Errorf("invalid scan type %q: must be full or incremental", scanType)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.Default())

	store, err := db.NewPostgresStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	source, err := app.NewFileSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create file source: %w", err)
	}

	scanner := scan.NewScanner(store, source, extract.NewRegistry(), notify.NewStoreNotifier(store, logger), logger)
	sess, err := scanner.Run(ctx, c.String("folder"), scanType)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("Scan %s %s\n", sess.SessionID, sess.Status)
	fmt.Printf("  items:   %d/%d\n", sess.ScannedItems, sess.TotalItems)
	fmt.Printf("  new:     %d\n", sess.NewItemsFound)
	fmt.Printf("  changed: %d\n", sess.ChangedItemsFound)
	fmt.Printf("  size:    %d bytes\n", sess.TotalSizeBytes)
	return nil
}

func reprocessCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one drive file id is required")
	}

	ctx := context.Background()
	logger := logging.NewSlogLogger(slog.Default())

	p, err := newPipeline(ctx, config.LoadConfig(), logger)
	if err != nil {
		return err
	}
	defer p.close()

	res := p.orch.ReprocessBatch(ctx, c.Args().Slice())
	p.queue.Close()

	fmt.Printf("queued: %d  not found: %d  failed: %d\n", len(res.Queued), len(res.NotFound), len(res.Failed))
	for _, id := range res.NotFound {
		fmt.Printf("  not found: %s\n", id)
	}
	for _, id := range res.Failed {
		fmt.Printf("  failed: %s\n", id)
	}
	if skipped := len(res.NotFound) + len(res.Failed); skipped > 0 {
		return fmt.Errorf("%d documents were not queued", skipped)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg := config.LoadConfig()

	store, err := db.NewPostgresStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	embedder, err := app.NewEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	if closer, ok := embedder.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	vec, err := embedder.Embed(ctx, c.String("query"))
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := store.SearchDocuments(ctx, vec, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("%2d. %.3f  %s  (%s)\n", i+1, h.Similarity, h.FileName, h.DriveFileID)
		if snippet := firstLine(h.TextSnippet); snippet != "" {
			fmt.Printf("     %s\n", snippet)
		}
	}
	return nil
}

func jobsCommand(c *cli.Context) error {
	ctx := context.Background()

	store, err := db.NewPostgresStore(ctx, config.LoadConfig())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	jobs, err := store.ListIngestionJobs(ctx, c.Int("limit"), 0)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for i := range jobs {
		printJob(&jobs[i])
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	store, err := db.NewPostgresStore(ctx, config.LoadConfig())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("failed to load statistics: %w", err)
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printJob(j *models.IngestionJob) {
	fmt.Printf("%s  %-9s  %3.0f%%  %d/%d files, %d failed  %s\n",
		j.JobID, j.Status, j.CompletionPercentage(),
		j.ProcessedFiles, j.TotalFiles, j.FailedFiles,
		j.StartedAt.Format(time.RFC3339))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120]) + "..."
	}
	return s
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
