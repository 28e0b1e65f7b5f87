package db

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

// MemoryStore is an in-process core.Store used by tests and local runs
// without Postgres. It mirrors the guarded-update semantics of the SQL
// implementation, including the compare-and-set job completion.
type MemoryStore struct {
	mu            sync.Mutex
	docs          map[string]*models.Document
	jobs          map[string]*models.IngestionJob
	sessions      map[string]*models.ScanSession
	progress      []models.ScanProgressEntry
	folders       map[string]*models.DriveFolder
	versions      map[string][]models.DocumentVersion
	logs          []models.ProcessingLogEntry
	notifications []models.Notification
	nextID        int64
}

var _ core.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*models.Document),
		jobs:     make(map[string]*models.IngestionJob),
		sessions: make(map[string]*models.ScanSession),
		folders:  make(map[string]*models.DriveFolder),
		versions: make(map[string][]models.DocumentVersion),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) nextSeq() int64 {
	m.nextID++
	return m.nextID
}

func copyDoc(d *models.Document) *models.Document {
	cp := *d
	cp.Embedding = append([]float32(nil), d.Embedding...)
	cp.AIKeywords = append([]string(nil), d.AIKeywords...)
	cp.AICategories = append([]string(nil), d.AICategories...)
	cp.CustomTags = append([]string(nil), d.CustomTags...)
	return &cp
}

// Document operations.

func (m *MemoryStore) UpsertPendingDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	d, ok := m.docs[doc.DriveFileID]
	if !ok {
		d = &models.Document{
			ID:          m.nextSeq(),
			DriveFileID: doc.DriveFileID,
			CreatedAt:   now,
		}
		m.docs[doc.DriveFileID] = d
	}
	d.FileName = doc.FileName
	d.MimeType = doc.MimeType
	d.ResourceType = doc.ResourceType
	d.DriveURL = doc.DriveURL
	d.FolderID = doc.FolderID
	d.JobID = doc.JobID
	d.Status = models.DocPending
	d.ErrorMessage = ""
	d.UpdatedAt = now
	return nil
}

func (m *MemoryStore) TransitionDocumentStatus(ctx context.Context, driveFileID, status, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[driveFileID]
	if !ok {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	d.Status = status
	d.ErrorMessage = errorMessage
	if status == models.DocCompleted || status == models.DocFailed {
		now := time.Now()
		d.ProcessedAt = &now
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) StoreDocumentResult(ctx context.Context, driveFileID string, r *models.DocumentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[driveFileID]
	if !ok || (d.Status != models.DocProcessing && d.Status != models.DocCompleted) {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrInvalidTransition)
	}
	now := time.Now()
	d.ResourceType = r.ResourceType
	d.TextSnippet = r.TextSnippet
	d.FullTextLength = r.FullTextLength
	d.Embedding = append([]float32(nil), r.Embedding...)
	d.Checksum = r.Checksum
	d.Status = models.DocCompleted
	d.ErrorMessage = ""
	d.ProcessedAt = &now
	d.UpdatedAt = now
	return nil
}

func (m *MemoryStore) UpdateDocumentEnrichment(ctx context.Context, driveFileID string, enr *models.Enrichment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[driveFileID]
	if !ok {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	now := time.Now()
	d.AISummary = enr.Summary
	d.AIKeywords = append([]string(nil), enr.Keywords...)
	d.AICategories = append([]string(nil), enr.Categories...)
	d.Language = enr.Language
	d.SentimentScore = enr.SentimentScore
	d.ReadingTimeMin = enr.ReadingTimeMin
	d.EnrichedAt = &now
	d.UpdatedAt = now
	return nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, driveFileID string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[driveFileID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	return copyDoc(d), nil
}

func matchesFilter(d *models.Document, f models.DocumentFilter) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.FolderID != "" && d.FolderID != f.FolderID {
		return false
	}
	if f.ResourceType != "" && d.ResourceType != f.ResourceType {
		return false
	}
	return true
}

func (m *MemoryStore) ListDocuments(ctx context.Context, f models.DocumentFilter) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Document
	for _, d := range m.docs {
		if matchesFilter(d, f) {
			out = append(out, *copyDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountDocuments(ctx context.Context, f models.DocumentFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, d := range m.docs {
		if matchesFilter(d, f) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DocumentExists(ctx context.Context, driveFileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.docs[driveFileID]
	return ok, nil
}

func (m *MemoryStore) DeleteDocument(ctx context.Context, driveFileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[driveFileID]; !ok {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	delete(m.docs, driveFileID)
	delete(m.versions, driveFileID)
	kept := m.logs[:0]
	for _, e := range m.logs {
		if e.DriveFileID != driveFileID {
			kept = append(kept, e)
		}
	}
	m.logs = kept
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *MemoryStore) SearchDocuments(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	var out []models.SearchHit
	for _, d := range m.docs {
		if d.Status != models.DocCompleted || len(d.Embedding) == 0 {
			continue
		}
		out = append(out, models.SearchHit{
			DriveFileID: d.DriveFileID,
			FileName:    d.FileName,
			MimeType:    d.MimeType,
			DriveURL:    d.DriveURL,
			TextSnippet: d.TextSnippet,
			Similarity:  cosineSimilarity(embedding, d.Embedding),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ingestion job operations.

func (m *MemoryStore) CreateIngestionJob(ctx context.Context, job *models.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.JobID]; exists {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	m.jobs[job.JobID] = &models.IngestionJob{
		JobID:      job.JobID,
		FolderID:   job.FolderID,
		Status:     models.JobRunning,
		TotalFiles: job.TotalFiles,
		StartedAt:  time.Now(),
	}
	return nil
}

func (m *MemoryStore) GetIngestionJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, core.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) ListIngestionJobs(ctx context.Context, limit, offset int) ([]models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.IngestionJob
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) IncrementJobProgress(ctx context.Context, jobID string, processedDelta, failedDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, core.ErrNotFound)
	}
	j.ProcessedFiles += processedDelta
	j.FailedFiles += failedDelta
	return nil
}

func (m *MemoryStore) TryCompleteJob(ctx context.Context, jobID string) (*models.IngestionJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, false, nil
	}
	if j.Status != models.JobRunning || j.ProcessedFiles < j.TotalFiles {
		return nil, false, nil
	}
	now := time.Now()
	j.Status = models.JobCompleted
	j.CompletedAt = &now
	if j.FailedFiles > 0 {
		j.ErrorMessage = fmt.Sprintf("%d of %d files failed", j.FailedFiles, j.TotalFiles)
	}
	cp := *j
	return &cp, true, nil
}

func (m *MemoryStore) FailJob(ctx context.Context, jobID, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobRunning {
		return fmt.Errorf("job %s not running: %w", jobID, core.ErrInvalidTransition)
	}
	now := time.Now()
	j.Status = models.JobFailed
	j.ErrorMessage = errorMessage
	j.CompletedAt = &now
	return nil
}

// Scan session operations.

func (m *MemoryStore) CreateScanSession(ctx context.Context, s *models.ScanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.SessionID] = &models.ScanSession{
		SessionID: s.SessionID,
		FolderID:  s.FolderID,
		ScanType:  s.ScanType,
		Status:    models.ScanInProgress,
		StartedAt: time.Now(),
	}
	return nil
}

func (m *MemoryStore) UpdateScanSession(ctx context.Context, sessionID string, upd models.ScanSessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("scan session %s: %w", sessionID, core.ErrNotFound)
	}
	if upd.Status != nil {
		s.Status = *upd.Status
	}
	if upd.TotalItems != nil {
		s.TotalItems = *upd.TotalItems
	}
	if upd.NewItemsFound != nil {
		s.NewItemsFound = *upd.NewItemsFound
	}
	if upd.ChangedItemsFound != nil {
		s.ChangedItemsFound = *upd.ChangedItemsFound
	}
	if upd.TotalSizeBytes != nil {
		s.TotalSizeBytes = *upd.TotalSizeBytes
	}
	if upd.ErrorMessage != nil {
		s.ErrorMessage = *upd.ErrorMessage
	}
	if upd.Completed {
		now := time.Now()
		s.CompletedAt = &now
	}
	return nil
}

func (m *MemoryStore) IncrementScannedItems(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("scan session %s: %w", sessionID, core.ErrNotFound)
	}
	s.ScannedItems++
	return nil
}

func (m *MemoryStore) AddScanProgress(ctx context.Context, e *models.ScanProgressEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := *e
	entry.ID = m.nextSeq()
	entry.ProcessedAt = time.Now()
	m.progress = append(m.progress, entry)
	return nil
}

func (m *MemoryStore) GetScanSession(ctx context.Context, sessionID string) (*models.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("scan session %s: %w", sessionID, core.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListScanSessions(ctx context.Context, folderID string, limit int) ([]models.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ScanSession
	for _, s := range m.sessions {
		if folderID != "" && s.FolderID != folderID {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListScanProgress(ctx context.Context, sessionID string, limit int) ([]models.ScanProgressEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	var out []models.ScanProgressEntry
	for i := len(m.progress) - 1; i >= 0 && len(out) < limit; i-- {
		if m.progress[i].SessionID == sessionID {
			out = append(out, m.progress[i])
		}
	}
	return out, nil
}

// Drive folder operations.

func (m *MemoryStore) UpsertFolder(ctx context.Context, f *models.DriveFolder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.folders[f.FolderID]
	if !ok {
		existing = &models.DriveFolder{FolderID: f.FolderID, CreatedAt: now}
		m.folders[f.FolderID] = existing
	}
	existing.FolderName = f.FolderName
	existing.Description = f.Description
	existing.IsActive = f.IsActive
	existing.UpdatedAt = now
	return nil
}

func (m *MemoryStore) GetFolder(ctx context.Context, folderID string) (*models.DriveFolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", folderID, core.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (m *MemoryStore) ListFolders(ctx context.Context, activeOnly bool) ([]models.DriveFolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.DriveFolder
	for _, f := range m.folders {
		if activeOnly && !f.IsActive {
			continue
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteFolder(ctx context.Context, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.folders[folderID]; !ok {
		return fmt.Errorf("folder %s: %w", folderID, core.ErrNotFound)
	}
	delete(m.folders, folderID)
	return nil
}

func (m *MemoryStore) UpdateFolderScanStats(ctx context.Context, folderID string, totalItems, scannedItems int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.folders[folderID]
	if !ok {
		return fmt.Errorf("folder %s: %w", folderID, core.ErrNotFound)
	}
	now := time.Now()
	f.LastScanAt = &now
	f.LastScanStatus = status
	f.TotalItemsCount = totalItems
	f.ScannedItemsCount = scannedItems
	f.UpdatedAt = now
	return nil
}

// Document version operations.

func (m *MemoryStore) CreateDocumentVersion(ctx context.Context, v *models.DocumentVersion) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.versions[v.DriveFileID]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].VersionNumber + 1
	}
	entry := *v
	entry.ID = m.nextSeq()
	entry.VersionNumber = next
	entry.CreatedAt = time.Now()
	m.versions[v.DriveFileID] = append(versions, entry)
	return next, nil
}

func (m *MemoryStore) LatestDocumentVersion(ctx context.Context, driveFileID string) (*models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.versions[driveFileID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("versions of %s: %w", driveFileID, core.ErrNotFound)
	}
	cp := versions[len(versions)-1]
	return &cp, nil
}

func (m *MemoryStore) ListDocumentVersions(ctx context.Context, driveFileID string, limit int) ([]models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.versions[driveFileID]
	if limit <= 0 {
		limit = 20
	}
	var out []models.DocumentVersion
	for i := len(versions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, versions[i])
	}
	return out, nil
}

// Processing log operations.

func (m *MemoryStore) AddProcessingLog(ctx context.Context, e *models.ProcessingLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := *e
	entry.ID = m.nextSeq()
	entry.CreatedAt = time.Now()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MemoryStore) ListDocumentLogs(ctx context.Context, driveFileID string, limit int) ([]models.ProcessingLogEntry, error) {
	return m.filterLogs(func(e *models.ProcessingLogEntry) bool { return e.DriveFileID == driveFileID }, limit)
}

func (m *MemoryStore) ListJobLogs(ctx context.Context, jobID string, limit int) ([]models.ProcessingLogEntry, error) {
	return m.filterLogs(func(e *models.ProcessingLogEntry) bool { return e.JobID == jobID }, limit)
}

func (m *MemoryStore) filterLogs(match func(*models.ProcessingLogEntry) bool, limit int) ([]models.ProcessingLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	var out []models.ProcessingLogEntry
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if match(&m.logs[i]) {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

// Notification operations.

func (m *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := *n
	entry.CreatedAt = time.Now()
	m.notifications = append(m.notifications, entry)
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []models.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.notifications[i])
	}
	return out, nil
}

// Statistics.

func (m *MemoryStore) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats models.Statistics
	for _, d := range m.docs {
		stats.TotalDocuments++
		stats.TotalTextLength += int64(d.FullTextLength)
		switch d.Status {
		case models.DocCompleted:
			stats.CompletedDocuments++
		case models.DocFailed:
			stats.FailedDocuments++
		case models.DocPending:
			stats.PendingDocuments++
		case models.DocProcessing:
			stats.ProcessingDocuments++
		}
	}
	for _, j := range m.jobs {
		stats.TotalJobs++
		switch j.Status {
		case models.JobRunning:
			stats.RunningJobs++
		case models.JobCompleted:
			stats.CompletedJobs++
		case models.JobFailed:
			stats.FailedJobs++
		}
	}
	stats.TotalFolders = len(m.folders)
	return &stats, nil
}
