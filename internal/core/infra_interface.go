package core

import (
	"context"

	"github.com/drivevectorai/backend/internal/models"
)

// Store defines all persistence operations the pipeline needs. It abstracts
// Postgres/pgvector so higher layers never depend on a specific DB; an
// in-memory implementation backs tests and local runs.
type Store interface {
	// UpsertPendingDocument creates a document row for the drive file or
	// resets an existing one back to pending, updating name, MIME type, URL,
	// folder and owning job. Idempotent: concurrent upserts for the same
	// file leave one pending row (last write wins).
	UpsertPendingDocument(ctx context.Context, doc *models.Document) error

	// TransitionDocumentStatus moves a document to status and records an
	// optional error message.
	TransitionDocumentStatus(ctx context.Context, driveFileID, status, errorMessage string) error

	// StoreDocumentResult writes extraction output and the embedding, marks
	// the document completed and stamps processed_at. Guarded: only rows in
	// processing or completed are updated (a redelivered task may overwrite
	// an identical completed row, but never resurrect a failed one). Returns
	// ErrInvalidTransition if no row qualified.
	StoreDocumentResult(ctx context.Context, driveFileID string, res *models.DocumentResult) error

	// UpdateDocumentEnrichment attaches AI metadata to a document without
	// touching its status.
	UpdateDocumentEnrichment(ctx context.Context, driveFileID string, enr *models.Enrichment) error

	GetDocument(ctx context.Context, driveFileID string) (*models.Document, error)
	ListDocuments(ctx context.Context, f models.DocumentFilter) ([]models.Document, error)
	CountDocuments(ctx context.Context, f models.DocumentFilter) (int, error)
	DocumentExists(ctx context.Context, driveFileID string) (bool, error)
	DeleteDocument(ctx context.Context, driveFileID string) error

	// SearchDocuments returns completed documents ordered by vector distance
	// to the query embedding.
	SearchDocuments(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error)

	CreateIngestionJob(ctx context.Context, job *models.IngestionJob) error
	GetIngestionJob(ctx context.Context, jobID string) (*models.IngestionJob, error)
	ListIngestionJobs(ctx context.Context, limit, offset int) ([]models.IngestionJob, error)

	// IncrementJobProgress atomically adds processedDelta to processed_files
	// and failedDelta to failed_files.
	IncrementJobProgress(ctx context.Context, jobID string, processedDelta, failedDelta int) error

	// TryCompleteJob atomically completes the job if it is still running and
	// processed_files has reached total_files. Exactly one caller wins the
	// race; the winner gets the final job row and won=true, losers get
	// won=false with no error.
	TryCompleteJob(ctx context.Context, jobID string) (job *models.IngestionJob, won bool, err error)

	// FailJob force-fails a running job (enumeration errors, shutdown).
	FailJob(ctx context.Context, jobID, errorMessage string) error

	CreateScanSession(ctx context.Context, s *models.ScanSession) error
	UpdateScanSession(ctx context.Context, sessionID string, upd models.ScanSessionUpdate) error

	// IncrementScannedItems bumps the session's scanned counter by one; the
	// scanner calls it after every item so progress is observable mid-scan.
	IncrementScannedItems(ctx context.Context, sessionID string) error

	AddScanProgress(ctx context.Context, e *models.ScanProgressEntry) error
	GetScanSession(ctx context.Context, sessionID string) (*models.ScanSession, error)
	ListScanSessions(ctx context.Context, folderID string, limit int) ([]models.ScanSession, error)
	ListScanProgress(ctx context.Context, sessionID string, limit int) ([]models.ScanProgressEntry, error)

	UpsertFolder(ctx context.Context, f *models.DriveFolder) error
	GetFolder(ctx context.Context, folderID string) (*models.DriveFolder, error)
	ListFolders(ctx context.Context, activeOnly bool) ([]models.DriveFolder, error)
	DeleteFolder(ctx context.Context, folderID string) error

	// UpdateFolderScanStats denormalizes the latest scan outcome onto the
	// folder row.
	UpdateFolderScanStats(ctx context.Context, folderID string, totalItems, scannedItems int, status string) error

	// CreateDocumentVersion inserts the next version snapshot and returns
	// its number. Version numbers are contiguous per document from 1.
	CreateDocumentVersion(ctx context.Context, v *models.DocumentVersion) (int, error)

	// LatestDocumentVersion returns ErrNotFound when no versions exist yet.
	LatestDocumentVersion(ctx context.Context, driveFileID string) (*models.DocumentVersion, error)
	ListDocumentVersions(ctx context.Context, driveFileID string, limit int) ([]models.DocumentVersion, error)

	AddProcessingLog(ctx context.Context, e *models.ProcessingLogEntry) error
	ListDocumentLogs(ctx context.Context, driveFileID string, limit int) ([]models.ProcessingLogEntry, error)
	ListJobLogs(ctx context.Context, jobID string, limit int) ([]models.ProcessingLogEntry, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]models.Notification, error)

	GetStatistics(ctx context.Context) (*models.Statistics, error)

	Close() error
}

// FileSource lists and downloads files from a cloud drive. Implementations
// exist for Google Drive and S3 prefixes.
type FileSource interface {
	// ListChildren returns one page of the folder's direct children plus the
	// token for the next page; an empty token means the listing is done.
	ListChildren(ctx context.Context, folderID, pageToken string) ([]models.FileItem, string, error)

	// GetContent downloads the file body. Drive-native formats are exported
	// to plain text.
	GetContent(ctx context.Context, fileID string) ([]byte, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Enricher generates summary/keyword/category metadata for extracted text.
type Enricher interface {
	EnrichDocument(ctx context.Context, text string) (*models.Enrichment, error)
}

// TextExtractor converts downloaded bytes into plain text.
type TextExtractor interface {
	Extract(data []byte, mimeType string) (string, error)
	Supported(mimeType string) bool
}

// TaskQueue accepts document processing tasks for asynchronous execution.
// Delivery is at-least-once; handlers must tolerate redelivery.
type TaskQueue interface {
	Enqueue(req models.ProcessRequest) error

	// Close drains in-flight tasks and stops the workers.
	Close()
}

// Notifier records pipeline milestones (job completed, scan failed, ...).
// Fire-and-forget: implementations log failures instead of returning them.
type Notifier interface {
	JobCompleted(ctx context.Context, job *models.IngestionJob)
	JobFailed(ctx context.Context, job *models.IngestionJob)
	ScanCompleted(ctx context.Context, s *models.ScanSession)
	ScanFailed(ctx context.Context, s *models.ScanSession)
}
