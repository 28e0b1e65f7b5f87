package models

import (
	"time"
)

// Document status lifecycle. Transitions only move forward within one
// processing attempt: pending -> processing -> completed | failed. A new
// ingestion run or reprocess resets a row back to pending.
const (
	DocPending    = "pending"
	DocProcessing = "processing"
	DocCompleted  = "completed"
	DocFailed     = "failed"
)

// Ingestion job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Scan session statuses.
const (
	ScanInProgress = "in_progress"
	ScanCompleted  = "completed"
	ScanFailed     = "failed"
)

// Document is one drive file tracked by the pipeline, identified by its
// external drive file id. The embedding is a pgvector column.
type Document struct {
	ID             int64      `db:"id" json:"id"`
	DriveFileID    string     `db:"drive_file_id" json:"drive_file_id"`
	FileName       string     `db:"file_name" json:"file_name"`
	MimeType       string     `db:"mime_type" json:"mime_type"`
	ResourceType   string     `db:"resource_type" json:"resource_type"` // pdf | document | spreadsheet | ...
	DriveURL       string     `db:"drive_url" json:"drive_url"`
	FolderID       string     `db:"folder_id" json:"folder_id"`
	JobID          string     `db:"job_id" json:"job_id"` // ingestion job that last touched this row
	Status         string     `db:"status" json:"status"` // pending | processing | completed | failed
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	TextSnippet    string     `db:"text_snippet" json:"text_snippet,omitempty"`
	FullTextLength int        `db:"full_text_length" json:"full_text_length"`
	Embedding      []float32  `db:"embedding" json:"-"`
	Checksum       string     `db:"checksum" json:"checksum,omitempty"`
	AISummary      string     `db:"ai_summary" json:"ai_summary,omitempty"`
	AIKeywords     []string   `db:"ai_keywords" json:"ai_keywords,omitempty"`
	AICategories   []string   `db:"ai_categories" json:"ai_categories,omitempty"`
	CustomTags     []string   `db:"custom_tags" json:"custom_tags,omitempty"`
	Language       string     `db:"language" json:"language,omitempty"`
	SentimentScore float64    `db:"sentiment_score" json:"sentiment_score,omitempty"`
	ReadingTimeMin int        `db:"reading_time_min" json:"reading_time_min,omitempty"`
	ProcessedAt    *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	EnrichedAt     *time.Time `db:"enriched_at" json:"enriched_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// DocumentResult carries the output of a successful processing run, stored
// in one guarded write when the pipeline finishes a file.
type DocumentResult struct {
	ResourceType   string
	TextSnippet    string
	FullTextLength int
	Embedding      []float32
	Checksum       string
}

// Enrichment is the AI-generated metadata attached to a completed document.
// Best effort: a document is complete without it.
type Enrichment struct {
	Summary        string   `json:"summary"`
	Keywords       []string `json:"keywords"`
	Categories     []string `json:"categories"`
	Language       string   `json:"language"`
	SentimentScore float64  `json:"sentiment_score"`
	ReadingTimeMin int      `json:"reading_time_min"`
}

// IngestionJob tracks one folder ingestion run. Counters are incremented
// atomically in the store as individual files reach a terminal state.
type IngestionJob struct {
	JobID          string     `db:"job_id" json:"job_id"`
	FolderID       string     `db:"folder_id" json:"folder_id"`
	Status         string     `db:"status" json:"status"` // running | completed | failed
	TotalFiles     int        `db:"total_files" json:"total_files"`
	ProcessedFiles int        `db:"processed_files" json:"processed_files"`
	FailedFiles    int        `db:"failed_files" json:"failed_files"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// CompletionPercentage is processed/total clamped to [0,100].
func (j *IngestionJob) CompletionPercentage() float64 {
	if j.TotalFiles <= 0 {
		return 0
	}
	pct := float64(j.ProcessedFiles) / float64(j.TotalFiles) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ScanSession tracks one recursive folder scan. TotalItems is fixed by the
// counting pass before any scanning starts, so progress percentages are
// stable while the scan runs.
type ScanSession struct {
	SessionID         string     `db:"session_id" json:"session_id"`
	FolderID          string     `db:"folder_id" json:"folder_id"`
	ScanType          string     `db:"scan_type" json:"scan_type"` // full | incremental
	Status            string     `db:"status" json:"status"`       // in_progress | completed | failed
	TotalItems        int        `db:"total_items" json:"total_items"`
	ScannedItems      int        `db:"scanned_items" json:"scanned_items"`
	NewItemsFound     int        `db:"new_items_found" json:"new_items_found"`
	ChangedItemsFound int        `db:"changed_items_found" json:"changed_items_found"`
	TotalSizeBytes    int64      `db:"total_size_bytes" json:"total_size_bytes"`
	ErrorMessage      string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt         time.Time  `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// CompletionPercentage is scanned/total clamped to [0,100]; 0 while the
// counting pass has not finished.
func (s *ScanSession) CompletionPercentage() float64 {
	if s.TotalItems <= 0 {
		return 0
	}
	pct := float64(s.ScannedItems) / float64(s.TotalItems) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ScanSessionUpdate is a partial update applied to a scan session row.
// Nil fields are left untouched.
type ScanSessionUpdate struct {
	Status            *string
	TotalItems        *int
	NewItemsFound     *int
	ChangedItemsFound *int
	TotalSizeBytes    *int64
	ErrorMessage      *string
	Completed         bool // set completed_at = now()
}

// ScanProgressEntry is the per-item audit trail of a scan session.
type ScanProgressEntry struct {
	ID            int64     `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	ItemPath      string    `db:"item_path" json:"item_path"`
	ItemType      string    `db:"item_type" json:"item_type"` // file | folder
	Status        string    `db:"status" json:"status"`       // scanned | failed
	FileSizeBytes int64     `db:"file_size_bytes" json:"file_size_bytes"`
	ErrorMessage  string    `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt   time.Time `db:"processed_at" json:"processed_at"`
}

// DriveFolder is a registered drive folder eligible for ingestion and
// scanning, with denormalized stats from its latest scan.
type DriveFolder struct {
	FolderID          string     `db:"folder_id" json:"folder_id"`
	FolderName        string     `db:"folder_name" json:"folder_name"`
	Description       string     `db:"description" json:"description,omitempty"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	LastScanAt        *time.Time `db:"last_scan_at" json:"last_scan_at,omitempty"`
	LastScanStatus    string     `db:"last_scan_status" json:"last_scan_status,omitempty"`
	TotalItemsCount   int        `db:"total_items_count" json:"total_items_count"`
	ScannedItemsCount int        `db:"scanned_items_count" json:"scanned_items_count"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// DocumentVersion is a content snapshot taken when a file's checksum
// changes. Version numbers are contiguous per document, starting at 1.
type DocumentVersion struct {
	ID             int64     `db:"id" json:"id"`
	DriveFileID    string    `db:"drive_file_id" json:"drive_file_id"`
	VersionNumber  int       `db:"version_number" json:"version_number"`
	FileName       string    `db:"file_name" json:"file_name"`
	FileSizeBytes  int64     `db:"file_size_bytes" json:"file_size_bytes"`
	Checksum       string    `db:"checksum" json:"checksum"`
	ChangesSummary string    `db:"changes_summary" json:"changes_summary,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ProcessingLogEntry is one line of the per-document processing audit log.
type ProcessingLogEntry struct {
	ID          int64     `db:"id" json:"id"`
	DriveFileID string    `db:"drive_file_id" json:"drive_file_id"`
	JobID       string    `db:"job_id" json:"job_id,omitempty"`
	Level       string    `db:"level" json:"level"` // info | warning | error
	Message     string    `db:"message" json:"message"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Notification is an in-app event record (job completed, scan failed, ...).
type Notification struct {
	ID        string            `db:"id" json:"id"`
	Type      string            `db:"type" json:"type"` // success | warning | error | info
	Category  string            `db:"category" json:"category"`
	Title     string            `db:"title" json:"title"`
	Message   string            `db:"message" json:"message"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	Read      bool              `db:"read" json:"read"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// FileItem is one entry returned by a file source listing.
type FileItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
	WebURL       string    `json:"web_url"`
	IsFolder     bool      `json:"is_folder"`
}

// ProcessRequest identifies one document processing task. JobID is empty
// for reprocess runs that are not tied to a job, in which case no job
// counters are touched.
type ProcessRequest struct {
	DriveFileID string `json:"drive_file_id"`
	JobID       string `json:"job_id,omitempty"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Status       string
	FolderID     string
	ResourceType string
	Limit        int
	Offset       int
}

// SearchHit is one semantic search result ordered by vector distance.
type SearchHit struct {
	DriveFileID string  `json:"drive_file_id"`
	FileName    string  `json:"file_name"`
	MimeType    string  `json:"mime_type"`
	DriveURL    string  `json:"drive_url"`
	TextSnippet string  `json:"text_snippet"`
	Similarity  float64 `json:"similarity"`
}

// Statistics is the aggregate dashboard snapshot.
type Statistics struct {
	TotalDocuments      int   `json:"total_documents"`
	CompletedDocuments  int   `json:"completed_documents"`
	FailedDocuments     int   `json:"failed_documents"`
	PendingDocuments    int   `json:"pending_documents"`
	ProcessingDocuments int   `json:"processing_documents"`
	TotalJobs           int   `json:"total_jobs"`
	RunningJobs         int   `json:"running_jobs"`
	CompletedJobs       int   `json:"completed_jobs"`
	FailedJobs          int   `json:"failed_jobs"`
	TotalFolders        int   `json:"total_folders"`
	TotalTextLength     int64 `json:"total_text_length"`
}
