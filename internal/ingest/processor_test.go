package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/drivevectorai/backend/internal/core/database"
	"github.com/drivevectorai/backend/internal/models"
)

func TestIngestionJobRunsToCompletion(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-report", "report.txt", "text/plain", []byte("quarterly revenue grew steadily"))
	src.addFile("folder-1", "file-notes", "notes.txt", "text/plain", []byte("meeting notes from tuesday"))
	src.addFile("folder-1", "file-logo", "logo.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47})

	r := newRig(t, db.NewMemoryStore(), src, nil, 2)
	ctx := context.Background()

	job, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	require.Equal(t, 3, job.TotalFiles)
	r.runner.Close()

	final, err := r.store.GetIngestionJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, 3, final.ProcessedFiles)
	assert.Equal(t, 1, final.FailedFiles)
	assert.Equal(t, "1 of 3 files failed", final.ErrorMessage)
	assert.NotNil(t, final.CompletedAt)

	report, err := r.store.GetDocument(ctx, "file-report")
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, report.Status)
	assert.Equal(t, "document", report.ResourceType)
	assert.Equal(t, "quarterly revenue grew steadily", report.TextSnippet)
	assert.NotNil(t, report.ProcessedAt)

	logo, err := r.store.GetDocument(ctx, "file-logo")
	require.NoError(t, err)
	assert.Equal(t, models.DocFailed, logo.Status)
	assert.Equal(t, "image", logo.ResourceType)
	assert.Contains(t, logo.ErrorMessage, "unsupported document format")

	logs, err := r.store.ListDocumentLogs(ctx, "file-logo", 0)
	require.NoError(t, err)
	var hasFailureLog bool
	for _, e := range logs {
		if e.Level == "error" && strings.Contains(e.Message, "processing failed") {
			hasFailureLog = true
		}
	}
	assert.True(t, hasFailureLog, "expected a failure entry in the processing log")

	completed := r.notifier.completedJobs()
	require.Len(t, completed, 1, "exactly one completion notification")
	assert.Equal(t, 1, completed[0].FailedFiles)
}

func TestTransientFailureRetriesUntilSuccess(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "report.txt", "text/plain", []byte("retry me"))
	src.contentFails["file-1"] = 2

	r := newRig(t, db.NewMemoryStore(), src, nil, 1)
	ctx := context.Background()

	job, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	assert.Equal(t, 3, src.downloadCount("file-1"), "two failures plus the successful attempt")
	assert.Equal(t, 1, r.embedder.callCount(), "embedding only runs on the successful attempt")

	doc, err := r.store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, doc.Status)

	final, err := r.store.GetIngestionJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, 1, final.ProcessedFiles)
	assert.Equal(t, 0, final.FailedFiles)

	logs, err := r.store.ListDocumentLogs(ctx, "file-1", 0)
	require.NoError(t, err)
	attempts := 0
	for _, e := range logs {
		if strings.HasPrefix(e.Message, "processing started") {
			attempts++
		}
	}
	assert.Equal(t, 3, attempts)
	require.Len(t, r.notifier.completedJobs(), 1)
}

func TestRetriesExhaustedMarksDocumentFailed(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "report.txt", "text/plain", []byte("never delivered"))
	src.contentFails["file-1"] = 10

	r := newRig(t, db.NewMemoryStore(), src, nil, 1)
	ctx := context.Background()

	job, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	assert.Equal(t, 3, src.downloadCount("file-1"), "bounded by the attempt limit")

	doc, err := r.store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "temporary source outage")

	final, err := r.store.GetIngestionJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, 1, final.ProcessedFiles)
	assert.Equal(t, 1, final.FailedFiles)
	assert.Equal(t, "1 of 1 files failed", final.ErrorMessage)
}

func TestUnsupportedFormatFailsWithoutRetry(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "photo.png", "image/png", []byte{0x89})

	r := newRig(t, db.NewMemoryStore(), src, nil, 1)
	ctx := context.Background()

	_, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	assert.Equal(t, 1, src.downloadCount("file-1"), "permanent failures do not retry")
	assert.Equal(t, 0, r.embedder.callCount())

	doc, err := r.store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocFailed, doc.Status)
}

func TestRedeliveredTaskSkipsCompletedDocument(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "report.txt", "text/plain", []byte("content"))

	r := newRig(t, db.NewMemoryStore(), src, nil, 1)
	ctx := context.Background()

	job, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	// A duplicate delivery of the same task after completion.
	err = r.proc.ProcessOnce(ctx, models.ProcessRequest{DriveFileID: "file-1", JobID: job.JobID}, 1)
	require.NoError(t, err)

	final, err := r.store.GetIngestionJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.ProcessedFiles, "counters move once per file")
	assert.Equal(t, 1, src.downloadCount("file-1"))
	require.Len(t, r.notifier.completedJobs(), 1)
}

func TestReprocessSkipsVersionWhenContentUnchanged(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "report.txt", "text/plain", []byte("stable content"))

	store := db.NewMemoryStore()
	r := newRig(t, store, src, nil, 1)
	ctx := context.Background()

	job, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	versions, err := store.ListDocumentVersions(ctx, "file-1", 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "initial version", versions[0].ChangesSummary)

	// Second pipeline run over the same store, outside any job.
	r2 := newRig(t, store, src, nil, 1)
	require.NoError(t, r2.orch.Reprocess(ctx, "file-1"))
	r2.runner.Close()

	doc, err := store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, doc.Status)

	versions, err = store.ListDocumentVersions(ctx, "file-1", 0)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "unchanged content must not add a version")

	final, err := store.GetIngestionJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.ProcessedFiles, "reprocessing runs outside the job")
	assert.Empty(t, r2.notifier.completedJobs())
}

func TestReprocessAddsVersionWhenContentChanged(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "report.txt", "text/plain", []byte("first draft"))

	store := db.NewMemoryStore()
	r := newRig(t, store, src, nil, 1)
	ctx := context.Background()

	_, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	src.mu.Lock()
	src.contents["file-1"] = []byte("second draft with edits")
	src.mu.Unlock()

	r2 := newRig(t, store, src, nil, 1)
	require.NoError(t, r2.orch.Reprocess(ctx, "file-1"))
	r2.runner.Close()

	versions, err := store.ListDocumentVersions(ctx, "file-1", 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)
	assert.Equal(t, "content updated", versions[0].ChangesSummary)

	doc, err := store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "second draft with edits", doc.TextSnippet)
}

func TestEnrichmentStoredAfterCompletion(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "essay.txt", "text/plain", []byte("a long essay about rivers"))

	enricher := &fakeEnricher{enrichment: &models.Enrichment{
		Summary:        "An essay about rivers.",
		Keywords:       []string{"rivers", "essay"},
		Categories:     []string{"Education"},
		Language:       "English",
		SentimentScore: 0.7,
		ReadingTimeMin: 1,
	}}
	r := newRig(t, db.NewMemoryStore(), src, enricher, 1)
	ctx := context.Background()

	_, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	doc, err := r.store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, doc.Status)
	assert.Equal(t, "An essay about rivers.", doc.AISummary)
	assert.Equal(t, []string{"rivers", "essay"}, doc.AIKeywords)
	assert.Equal(t, "English", doc.Language)
	assert.NotNil(t, doc.EnrichedAt)
}

func TestEnrichmentFailureLeavesDocumentCompleted(t *testing.T) {
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "essay.txt", "text/plain", []byte("body"))

	enricher := &fakeEnricher{err: context.DeadlineExceeded}
	r := newRig(t, db.NewMemoryStore(), src, enricher, 1)
	ctx := context.Background()

	_, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	doc, err := r.store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, doc.Status)
	assert.Empty(t, doc.AISummary)
	assert.Nil(t, doc.EnrichedAt)

	logs, err := r.store.ListDocumentLogs(ctx, "file-1", 0)
	require.NoError(t, err)
	var warned bool
	for _, e := range logs {
		if e.Level == "warning" && strings.Contains(e.Message, "enrichment failed") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSnippetAndEmbedInputAreTruncated(t *testing.T) {
	long := strings.Repeat("é", 6000)
	src := newFakeSource()
	src.addFile("folder-1", "file-1", "long.txt", "text/plain", []byte(long))

	r := newRig(t, db.NewMemoryStore(), src, nil, 1)
	ctx := context.Background()

	_, err := r.orch.StartIngestion(ctx, "folder-1")
	require.NoError(t, err)
	r.runner.Close()

	doc, err := r.store.GetDocument(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, 500, len([]rune(doc.TextSnippet)))
	assert.Equal(t, 6000, doc.FullTextLength)
}
