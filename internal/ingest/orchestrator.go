package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/core/resource"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

// Orchestrator turns folders into ingestion jobs: it enumerates the source,
// creates the job with a fixed total, registers one pending document per file
// and enqueues the processing tasks.
type Orchestrator struct {
	store    core.Store
	source   core.FileSource
	queue    core.TaskQueue
	notifier core.Notifier
	logger   logging.Logger
}

func NewOrchestrator(store core.Store, source core.FileSource, queue core.TaskQueue, notifier core.Notifier, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		source:   source,
		queue:    queue,
		notifier: notifier,
		logger:   logger,
	}
}

// BatchResult partitions a batch reprocessing request by outcome.
type BatchResult struct {
	Queued   []string `json:"queued"`
	NotFound []string `json:"not_found"`
	Failed   []string `json:"failed"`
}

// StartIngestion enumerates the folder, creates a job sized to the files
// found and enqueues one task per file. Sub-folders are not descended into;
// scanning owns recursion. Returns core.ErrNoFilesFound when the folder has
// no files.
func (o *Orchestrator) StartIngestion(ctx context.Context, folderID string) (*models.IngestionJob, error) {
	files, err := o.listFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("folder %s: %w", folderID, core.ErrNoFilesFound)
	}

	job := &models.IngestionJob{
		JobID:      uuid.NewString(),
		FolderID:   folderID,
		Status:     models.JobRunning,
		TotalFiles: len(files),
		StartedAt:  time.Now().UTC(),
	}
	if err := o.store.CreateIngestionJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}
	o.logger.Info(ctx, "ingestion started",
		"job_id", job.JobID, "folder_id", folderID, "total_files", job.TotalFiles)

	counted := 0
	for _, f := range files {
		if err := o.dispatch(ctx, job.JobID, folderID, f); err != nil {
			// The task for this file will never run, so it is accounted as
			// failed here instead of in the pipeline.
			o.logger.Error(ctx, "dispatch file", "drive_file_id", f.ID, "error", err)
			o.countDispatchFailure(ctx, job.JobID, f.ID, err)
			counted++
		}
	}
	// Files accounted inline never run their own completion check. If they
	// were the last ones outstanding the job would stay running forever, so
	// check once here.
	if counted > 0 {
		completeJob(ctx, o.store, o.notifier, o.logger, job.JobID)
	}
	return job, nil
}

func (o *Orchestrator) listFiles(ctx context.Context, folderID string) ([]models.FileItem, error) {
	var files []models.FileItem
	pageToken := ""
	for {
		items, next, err := o.source.ListChildren(ctx, folderID, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folderID, err)
		}
		for _, it := range items {
			if it.IsFolder {
				continue
			}
			files = append(files, it)
		}
		if next == "" {
			return files, nil
		}
		pageToken = next
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, jobID, folderID string, f models.FileItem) error {
	doc := &models.Document{
		DriveFileID:  f.ID,
		FileName:     f.Name,
		MimeType:     f.MimeType,
		ResourceType: string(resource.Detect(f.MimeType)),
		DriveURL:     f.WebURL,
		FolderID:     folderID,
		JobID:        jobID,
	}
	if err := o.store.UpsertPendingDocument(ctx, doc); err != nil {
		return fmt.Errorf("register document: %w", err)
	}
	if err := o.queue.Enqueue(models.ProcessRequest{DriveFileID: f.ID, JobID: jobID}); err != nil {
		// The row exists but no worker will ever pick it up; fail it so it
		// does not sit in "pending" forever.
		serr := o.store.TransitionDocumentStatus(ctx, f.ID, models.DocFailed, "enqueue failed: "+err.Error())
		if serr != nil {
			o.logger.Error(ctx, "mark document failed", "drive_file_id", f.ID, "error", serr)
		}
		return fmt.Errorf("enqueue document: %w", err)
	}
	return nil
}

func (o *Orchestrator) countDispatchFailure(ctx context.Context, jobID, driveFileID string, cause error) {
	lerr := o.store.AddProcessingLog(ctx, &models.ProcessingLogEntry{
		DriveFileID: driveFileID,
		JobID:       jobID,
		Level:       "error",
		Message:     "dispatch failed: " + cause.Error(),
	})
	if lerr != nil {
		o.logger.Warn(ctx, "write processing log", "drive_file_id", driveFileID, "error", lerr)
	}
	if err := o.store.IncrementJobProgress(ctx, jobID, 1, 1); err != nil {
		o.logger.Error(ctx, "increment job progress", "job_id", jobID, "error", err)
	}
}

// Reprocess resets a known document to pending and enqueues it outside any
// job, so no job counters move when it settles. Returns core.ErrNotFound for
// documents that were never ingested.
func (o *Orchestrator) Reprocess(ctx context.Context, driveFileID string) error {
	doc, err := o.store.GetDocument(ctx, driveFileID)
	if err != nil {
		return err
	}

	reset := &models.Document{
		DriveFileID:  doc.DriveFileID,
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		ResourceType: doc.ResourceType,
		DriveURL:     doc.DriveURL,
		FolderID:     doc.FolderID,
		JobID:        doc.JobID,
	}
	if err := o.store.UpsertPendingDocument(ctx, reset); err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if err := o.queue.Enqueue(models.ProcessRequest{DriveFileID: driveFileID}); err != nil {
		return fmt.Errorf("enqueue document: %w", err)
	}
	o.logger.Info(ctx, "document queued for reprocessing", "drive_file_id", driveFileID)
	return nil
}

// ReprocessBatch reprocesses every distinct id and reports the outcome per
// id. It never fails as a whole.
func (o *Orchestrator) ReprocessBatch(ctx context.Context, driveFileIDs []string) *BatchResult {
	res := &BatchResult{
		Queued:   []string{},
		NotFound: []string{},
		Failed:   []string{},
	}
	seen := make(map[string]bool, len(driveFileIDs))
	for _, id := range driveFileIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		switch err := o.Reprocess(ctx, id); {
		case err == nil:
			res.Queued = append(res.Queued, id)
		case errors.Is(err, core.ErrNotFound):
			res.NotFound = append(res.NotFound, id)
		default:
			o.logger.Error(ctx, "reprocess document", "drive_file_id", id, "error", err)
			res.Failed = append(res.Failed, id)
		}
	}
	return res
}
