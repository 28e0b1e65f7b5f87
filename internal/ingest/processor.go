package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/core/resource"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

// ProcessorConfig carries the per-step tuning knobs. Zero values fall back
// to the defaults below.
type ProcessorConfig struct {
	EmbedCharLimit  int
	SnippetLength   int
	DownloadTimeout time.Duration
	EmbedTimeout    time.Duration
	StoreTimeout    time.Duration
}

func (c *ProcessorConfig) applyDefaults() {
	if c.EmbedCharLimit <= 0 {
		c.EmbedCharLimit = 5000
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = 500
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 2 * time.Minute
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 30 * time.Second
	}
}

// Processor runs the full pipeline for a single document: download the
// content, classify it, extract text, embed it and persist the result.
// Enrichment runs after the document is already completed and never fails it.
type Processor struct {
	store     core.Store
	source    core.FileSource
	extractor core.TextExtractor
	embedder  core.Embedder
	enricher  core.Enricher
	notifier  core.Notifier
	logger    logging.Logger
	cfg       ProcessorConfig
}

var _ Handler = (*Processor)(nil)

// NewProcessor wires the pipeline. enricher and notifier may be nil; the
// corresponding steps are skipped.
func NewProcessor(
	store core.Store,
	source core.FileSource,
	extractor core.TextExtractor,
	embedder core.Embedder,
	enricher core.Enricher,
	notifier core.Notifier,
	logger logging.Logger,
	cfg ProcessorConfig,
) *Processor {
	cfg.applyDefaults()
	return &Processor{
		store:     store,
		source:    source,
		extractor: extractor,
		embedder:  embedder,
		enricher:  enricher,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// ProcessOnce runs a single attempt. A nil return means the task is settled:
// either the document completed (job counters updated) or it was already
// completed by an earlier delivery and the attempt was a no-op. Any error
// return leaves the document in "processing" and the job counters untouched,
// so the retry loop can run the attempt again without double counting.
func (p *Processor) ProcessOnce(ctx context.Context, req models.ProcessRequest, attempt int) error {
	log := p.logger.With("drive_file_id", req.DriveFileID, "job_id", req.JobID, "attempt", attempt)

	doc, err := p.store.GetDocument(ctx, req.DriveFileID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status == models.DocCompleted {
		log.Info(ctx, "document already completed, skipping redelivery")
		return nil
	}

	p.logStep(ctx, req, "info", fmt.Sprintf("processing started (attempt %d)", attempt))
	if err := p.store.TransitionDocumentStatus(ctx, req.DriveFileID, models.DocProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := p.download(ctx, req.DriveFileID)
	if err != nil {
		p.logStep(ctx, req, "error", "download failed: "+err.Error())
		return fmt.Errorf("download: %w", err)
	}
	log.Debug(ctx, "content downloaded", "bytes", len(data))

	kind := resource.Detect(doc.MimeType)

	text, err := p.extractor.Extract(data, doc.MimeType)
	if err != nil {
		p.logStep(ctx, req, "error", "text extraction failed: "+err.Error())
		return fmt.Errorf("extract: %w", err)
	}
	textLen := utf8.RuneCountInString(text)
	p.logStep(ctx, req, "info", fmt.Sprintf("extracted %d characters", textLen))

	embedding, err := p.embed(ctx, text)
	if err != nil {
		p.logStep(ctx, req, "error", "embedding failed: "+err.Error())
		return fmt.Errorf("embed: %w", err)
	}

	checksum := contentChecksum(data)
	result := &models.DocumentResult{
		ResourceType:   string(kind),
		TextSnippet:    truncateRunes(text, p.cfg.SnippetLength),
		FullTextLength: textLen,
		Embedding:      embedding,
		Checksum:       checksum,
	}
	if err := p.storeResult(ctx, req.DriveFileID, result); err != nil {
		p.logStep(ctx, req, "error", "storing result failed: "+err.Error())
		return fmt.Errorf("store result: %w", err)
	}
	p.logStep(ctx, req, "info", "document completed")

	p.recordVersion(ctx, doc, checksum, int64(len(data)))
	p.settle(ctx, req, false)
	p.enrich(ctx, req, text)
	return nil
}

// FinalizeFailure marks the document failed and accounts it on the job. The
// runner calls it exactly once per task, so the counters move exactly once.
func (p *Processor) FinalizeFailure(ctx context.Context, req models.ProcessRequest, cause error) {
	p.logStep(ctx, req, "error", "processing failed: "+cause.Error())
	if err := p.store.TransitionDocumentStatus(ctx, req.DriveFileID, models.DocFailed, cause.Error()); err != nil {
		p.logger.Error(ctx, "mark document failed",
			"drive_file_id", req.DriveFileID, "error", err)
	}
	p.settle(ctx, req, true)
}

func (p *Processor) download(ctx context.Context, driveFileID string) ([]byte, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	defer cancel()
	return p.source.GetContent(dctx, driveFileID)
}

func (p *Processor) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()
	return p.embedder.Embed(ectx, truncateRunes(text, p.cfg.EmbedCharLimit))
}

func (p *Processor) storeResult(ctx context.Context, driveFileID string, result *models.DocumentResult) error {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.store.StoreDocumentResult(sctx, driveFileID, result)
}

// settle moves the job counters for a terminal outcome and runs the
// completion check. Tasks without a job id (reprocessing) skip both.
func (p *Processor) settle(ctx context.Context, req models.ProcessRequest, failed bool) {
	if req.JobID == "" {
		return
	}
	processed, failedDelta := 1, 0
	if failed {
		failedDelta = 1
	}
	if err := p.store.IncrementJobProgress(ctx, req.JobID, processed, failedDelta); err != nil {
		p.logger.Error(ctx, "increment job progress", "job_id", req.JobID, "error", err)
		return
	}
	completeJob(ctx, p.store, p.notifier, p.logger, req.JobID)
}

// completeJob runs the atomic completion check and, on winning it, emits the
// single completion notification for the job.
func completeJob(ctx context.Context, store core.Store, notifier core.Notifier, logger logging.Logger, jobID string) {
	job, won, err := store.TryCompleteJob(ctx, jobID)
	if err != nil {
		logger.Error(ctx, "job completion check failed", "job_id", jobID, "error", err)
		return
	}
	if !won {
		return
	}
	logger.Info(ctx, "ingestion job completed",
		"job_id", jobID, "processed", job.ProcessedFiles, "failed", job.FailedFiles)
	if notifier != nil {
		notifier.JobCompleted(ctx, job)
	}
}

// recordVersion snapshots the document when its content changed since the
// last snapshot. Failures only log; versioning never fails the pipeline.
func (p *Processor) recordVersion(ctx context.Context, doc *models.Document, checksum string, size int64) {
	summary := "content updated"
	latest, err := p.store.LatestDocumentVersion(ctx, doc.DriveFileID)
	switch {
	case err == nil:
		if latest.Checksum == checksum {
			return
		}
	case errors.Is(err, core.ErrNotFound):
		summary = "initial version"
	default:
		p.logger.Warn(ctx, "load latest version", "drive_file_id", doc.DriveFileID, "error", err)
		return
	}

	_, err = p.store.CreateDocumentVersion(ctx, &models.DocumentVersion{
		DriveFileID:    doc.DriveFileID,
		FileName:       doc.FileName,
		Checksum:       checksum,
		FileSizeBytes:  size,
		ChangesSummary: summary,
	})
	if err != nil {
		p.logger.Warn(ctx, "create document version", "drive_file_id", doc.DriveFileID, "error", err)
	}
}

// enrich runs the optional AI analysis once the document is completed.
func (p *Processor) enrich(ctx context.Context, req models.ProcessRequest, text string) {
	if p.enricher == nil {
		return
	}
	enr, err := p.enricher.EnrichDocument(ctx, text)
	if err != nil {
		p.logStep(ctx, req, "warning", "enrichment failed: "+err.Error())
		return
	}
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	if err := p.store.UpdateDocumentEnrichment(sctx, req.DriveFileID, enr); err != nil {
		p.logStep(ctx, req, "warning", "storing enrichment failed: "+err.Error())
		return
	}
	p.logStep(ctx, req, "info", "enrichment stored")
}

func (p *Processor) logStep(ctx context.Context, req models.ProcessRequest, level, message string) {
	err := p.store.AddProcessingLog(ctx, &models.ProcessingLogEntry{
		DriveFileID: req.DriveFileID,
		JobID:       req.JobID,
		Level:       level,
		Message:     message,
	})
	if err != nil {
		p.logger.Warn(ctx, "write processing log", "drive_file_id", req.DriveFileID, "error", err)
	}
}

func contentChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
