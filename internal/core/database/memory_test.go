package db

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

func pendingDoc(id string) *models.Document {
	return &models.Document{
		DriveFileID: id,
		FileName:    id + ".txt",
		MimeType:    "text/plain",
		FolderID:    "folder-1",
		JobID:       "job-1",
	}
}

func TestUpsertResetsCompletedDocumentToPending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("f1")))
	require.NoError(t, store.TransitionDocumentStatus(ctx, "f1", models.DocProcessing, ""))
	require.NoError(t, store.StoreDocumentResult(ctx, "f1", &models.DocumentResult{
		ResourceType: "document", TextSnippet: "text", FullTextLength: 4, Embedding: []float32{1},
	}))

	first, err := store.GetDocument(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, first.Status)

	// A later ingestion run picks the same file up again.
	doc := pendingDoc("f1")
	doc.JobID = "job-2"
	require.NoError(t, store.UpsertPendingDocument(ctx, doc))

	second, err := store.GetDocument(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.DocPending, second.Status)
	assert.Equal(t, "job-2", second.JobID)
	assert.Empty(t, second.ErrorMessage)
	assert.Equal(t, first.ID, second.ID, "upsert must keep the same row")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestStoreDocumentResultGuards(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	res := &models.DocumentResult{ResourceType: "document", TextSnippet: "s", FullTextLength: 1}

	// Unknown document.
	err := store.StoreDocumentResult(ctx, "nope", res)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// Pending is not an allowed source state.
	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("f1")))
	err = store.StoreDocumentResult(ctx, "f1", res)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// Processing is.
	require.NoError(t, store.TransitionDocumentStatus(ctx, "f1", models.DocProcessing, ""))
	require.NoError(t, store.StoreDocumentResult(ctx, "f1", res))

	// A redelivered task may overwrite a completed row with the same result.
	require.NoError(t, store.StoreDocumentResult(ctx, "f1", res))

	// A failed row stays failed.
	require.NoError(t, store.TransitionDocumentStatus(ctx, "f1", models.DocFailed, "boom"))
	err = store.StoreDocumentResult(ctx, "f1", res)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestDeleteDocumentDropsVersionsAndLogs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("f1")))
	_, err := store.CreateDocumentVersion(ctx, &models.DocumentVersion{
		DriveFileID: "f1", FileName: "f1.txt", Checksum: "c1",
	})
	require.NoError(t, err)
	require.NoError(t, store.AddProcessingLog(ctx, &models.ProcessingLogEntry{
		DriveFileID: "f1", JobID: "job-1", Level: "error", Message: "download failed",
	}))
	require.NoError(t, store.AddProcessingLog(ctx, &models.ProcessingLogEntry{
		DriveFileID: "f2", JobID: "job-1", Level: "info", Message: "stored",
	}))

	require.NoError(t, store.DeleteDocument(ctx, "f1"))

	_, err = store.GetDocument(ctx, "f1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.LatestDocumentVersion(ctx, "f1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	logs, err := store.ListDocumentLogs(ctx, "f1", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// Other documents keep their logs.
	logs, err = store.ListDocumentLogs(ctx, "f2", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	err = store.DeleteDocument(ctx, "f1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTryCompleteJobRequiresAllFilesProcessed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateIngestionJob(ctx, &models.IngestionJob{JobID: "j1", FolderID: "f", TotalFiles: 2}))

	require.NoError(t, store.IncrementJobProgress(ctx, "j1", 1, 0))
	_, won, err := store.TryCompleteJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, won, "job must not complete before every file is processed")

	require.NoError(t, store.IncrementJobProgress(ctx, "j1", 1, 1))
	job, won, err := store.TryCompleteJob(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "1 of 2 files failed", job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)
}

func TestTryCompleteJobExactlyOneWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateIngestionJob(ctx, &models.IngestionJob{JobID: "j1", FolderID: "f", TotalFiles: 8}))
	require.NoError(t, store.IncrementJobProgress(ctx, "j1", 8, 0))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, won, err := store.TryCompleteJob(ctx, "j1")
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "completion must be won by exactly one caller")
}

func TestFailJobOnlyWhenRunning(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateIngestionJob(ctx, &models.IngestionJob{JobID: "j1", FolderID: "f", TotalFiles: 1}))
	require.NoError(t, store.FailJob(ctx, "j1", "listing broke"))

	job, err := store.GetIngestionJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, "listing broke", job.ErrorMessage)

	err = store.FailJob(ctx, "j1", "again")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestDocumentVersionNumbersAreContiguous(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, checksum := range []string{"c1", "c2", "c3"} {
		v, err := store.CreateDocumentVersion(ctx, &models.DocumentVersion{
			DriveFileID: "f1", FileName: "a.txt", Checksum: checksum,
		})
		require.NoError(t, err)
		assert.Equal(t, i+1, v)
	}

	latest, err := store.LatestDocumentVersion(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.VersionNumber)
	assert.Equal(t, "c3", latest.Checksum)

	_, err = store.LatestDocumentVersion(ctx, "other")
	assert.ErrorIs(t, err, core.ErrNotFound)

	versions, err := store.ListDocumentVersions(ctx, "f1", 2)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 3, versions[0].VersionNumber)
	assert.Equal(t, 2, versions[1].VersionNumber)
}

func TestScanSessionProgressTracking(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateScanSession(ctx, &models.ScanSession{
		SessionID: "s1", FolderID: "f1", ScanType: "full",
	}))

	total := 4
	require.NoError(t, store.UpdateScanSession(ctx, "s1", models.ScanSessionUpdate{TotalItems: &total}))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementScannedItems(ctx, "s1"))
	}

	sess, err := store.GetScanSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, sess.TotalItems)
	assert.Equal(t, 3, sess.ScannedItems)
	assert.InDelta(t, 75.0, sess.CompletionPercentage(), 1e-9)

	status := models.ScanCompleted
	newItems := 2
	require.NoError(t, store.UpdateScanSession(ctx, "s1", models.ScanSessionUpdate{
		Status: &status, NewItemsFound: &newItems, Completed: true,
	}))

	sess, err = store.GetScanSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, sess.Status)
	assert.Equal(t, 2, sess.NewItemsFound)
	assert.NotNil(t, sess.CompletedAt)
}

func TestSearchDocumentsOrdersBySimilarity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	add := func(id string, emb []float32) {
		require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc(id)))
		require.NoError(t, store.TransitionDocumentStatus(ctx, id, models.DocProcessing, ""))
		require.NoError(t, store.StoreDocumentResult(ctx, id, &models.DocumentResult{
			ResourceType: "document", TextSnippet: id, FullTextLength: 10, Embedding: emb,
		}))
	}
	add("near", []float32{1, 0})
	add("far", []float32{0, 1})
	add("mid", []float32{1, 1})

	// Pending rows never match.
	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("pending")))

	hits, err := store.SearchDocuments(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "near", hits[0].DriveFileID)
	assert.Equal(t, "mid", hits[1].DriveFileID)
	assert.Equal(t, "far", hits[2].DriveFileID)
}

func TestStatisticsAggregatesCounts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("a")))
	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("b")))
	require.NoError(t, store.TransitionDocumentStatus(ctx, "b", models.DocProcessing, ""))
	require.NoError(t, store.StoreDocumentResult(ctx, "b", &models.DocumentResult{
		ResourceType: "document", TextSnippet: "x", FullTextLength: 42,
	}))
	require.NoError(t, store.UpsertPendingDocument(ctx, pendingDoc("c")))
	require.NoError(t, store.TransitionDocumentStatus(ctx, "c", models.DocFailed, "bad"))

	require.NoError(t, store.CreateIngestionJob(ctx, &models.IngestionJob{JobID: "j1", FolderID: "f", TotalFiles: 3}))

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 1, stats.CompletedDocuments)
	assert.Equal(t, 1, stats.FailedDocuments)
	assert.Equal(t, 1, stats.PendingDocuments)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 1, stats.RunningJobs)
	assert.Equal(t, int64(42), stats.TotalTextLength)
}
