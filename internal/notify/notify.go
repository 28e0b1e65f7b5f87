// Package notify persists user-facing notifications for pipeline events.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

// StoreNotifier writes notifications into the document store. All methods
// are fire and forget: a failed write is logged, never propagated.
type StoreNotifier struct {
	store  core.Store
	logger logging.Logger
}

var _ core.Notifier = (*StoreNotifier)(nil)

func NewStoreNotifier(store core.Store, logger logging.Logger) *StoreNotifier {
	return &StoreNotifier{store: store, logger: logger}
}

func (n *StoreNotifier) JobCompleted(ctx context.Context, job *models.IngestionJob) {
	typ := "success"
	msg := fmt.Sprintf("Processed %d of %d files", job.ProcessedFiles, job.TotalFiles)
	if job.FailedFiles > 0 {
		typ = "warning"
		msg = fmt.Sprintf("Processed %d of %d files, %d failed",
			job.ProcessedFiles, job.TotalFiles, job.FailedFiles)
	}
	n.create(ctx, typ, "ingestion", "Ingestion completed", msg, map[string]string{
		"job_id":    job.JobID,
		"folder_id": job.FolderID,
	})
}

func (n *StoreNotifier) JobFailed(ctx context.Context, job *models.IngestionJob) {
	n.create(ctx, "error", "ingestion", "Ingestion failed", job.ErrorMessage, map[string]string{
		"job_id":    job.JobID,
		"folder_id": job.FolderID,
	})
}

func (n *StoreNotifier) ScanCompleted(ctx context.Context, s *models.ScanSession) {
	msg := fmt.Sprintf("Scanned %d items: %d new, %d changed",
		s.ScannedItems, s.NewItemsFound, s.ChangedItemsFound)
	n.create(ctx, "success", "scan", "Folder scan completed", msg, map[string]string{
		"session_id": s.SessionID,
		"folder_id":  s.FolderID,
	})
}

func (n *StoreNotifier) ScanFailed(ctx context.Context, s *models.ScanSession) {
	n.create(ctx, "error", "scan", "Folder scan failed", s.ErrorMessage, map[string]string{
		"session_id": s.SessionID,
		"folder_id":  s.FolderID,
	})
}

func (n *StoreNotifier) create(ctx context.Context, typ, category, title, message string, meta map[string]string) {
	err := n.store.CreateNotification(ctx, &models.Notification{
		ID:       uuid.NewString(),
		Type:     typ,
		Category: category,
		Title:    title,
		Message:  message,
		Metadata: meta,
	})
	if err != nil {
		n.logger.Warn(ctx, "store notification", "category", category, "error", err)
	}
}
