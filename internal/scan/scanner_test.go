package scan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/drivevectorai/backend/internal/core/database"
	"github.com/drivevectorai/backend/internal/core/extract"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

type fakeSource struct {
	folders  map[string][]models.FileItem
	pages    map[string][][]models.FileItem
	listErrs map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		folders:  make(map[string][]models.FileItem),
		pages:    make(map[string][][]models.FileItem),
		listErrs: make(map[string]error),
	}
}

func (f *fakeSource) addFile(folderID, id, name, mimeType string, size int64, modified time.Time) {
	f.folders[folderID] = append(f.folders[folderID], models.FileItem{
		ID:           id,
		Name:         name,
		MimeType:     mimeType,
		Size:         size,
		ModifiedTime: modified,
	})
}

func (f *fakeSource) addFolder(parentID, id, name string) {
	f.folders[parentID] = append(f.folders[parentID], models.FileItem{
		ID:       id,
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		IsFolder: true,
	})
	if _, ok := f.folders[id]; !ok {
		f.folders[id] = nil
	}
}

func (f *fakeSource) ListChildren(ctx context.Context, folderID, pageToken string) ([]models.FileItem, string, error) {
	if err := f.listErrs[folderID]; err != nil {
		return nil, "", err
	}
	if pages := f.pages[folderID]; len(pages) > 0 {
		idx := 0
		if pageToken != "" {
			idx, _ = strconv.Atoi(pageToken)
		}
		next := ""
		if idx+1 < len(pages) {
			next = strconv.Itoa(idx + 1)
		}
		return pages[idx], next, nil
	}
	return f.folders[folderID], "", nil
}

func (f *fakeSource) GetContent(ctx context.Context, fileID string) ([]byte, error) {
	return nil, errors.New("scanner never downloads")
}

type spyNotifier struct {
	mu          sync.Mutex
	scansDone   []*models.ScanSession
	scansFailed []*models.ScanSession
}

func (s *spyNotifier) JobCompleted(ctx context.Context, job *models.IngestionJob) {}
func (s *spyNotifier) JobFailed(ctx context.Context, job *models.IngestionJob)    {}

func (s *spyNotifier) ScanCompleted(ctx context.Context, sess *models.ScanSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scansDone = append(s.scansDone, sess)
}

func (s *spyNotifier) ScanFailed(ctx context.Context, sess *models.ScanSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scansFailed = append(s.scansFailed, sess)
}

func newScanner(t *testing.T, store *db.MemoryStore, source *fakeSource) (*Scanner, *spyNotifier) {
	t.Helper()
	notifier := &spyNotifier{}
	s := NewScanner(store, source, extract.NewRegistry(), notifier, logging.NewDiscard())
	return s, notifier
}

func TestScanReachesFullCompletionDespiteEmptySubfolder(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 10; i++ {
		src.addFile("root", fmt.Sprintf("file-%d", i), fmt.Sprintf("doc-%d.txt", i), "text/plain", 100, time.Time{})
	}
	src.addFolder("root", "sub-empty", "empty")

	store := db.NewMemoryStore()
	scanner, notifier := newScanner(t, store, src)
	ctx := context.Background()

	sess, err := scanner.Run(ctx, "root", "full")
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, sess.Status)
	assert.Equal(t, "full", sess.ScanType)
	assert.Equal(t, 10, sess.TotalItems, "folders are not counted")
	assert.Equal(t, 10, sess.ScannedItems)
	assert.Equal(t, float64(100), sess.CompletionPercentage())
	assert.Equal(t, 10, sess.NewItemsFound)
	assert.Equal(t, int64(1000), sess.TotalSizeBytes)
	assert.NotNil(t, sess.CompletedAt)

	entries, err := store.ListScanProgress(ctx, sess.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 11, "ten files plus the folder entry")

	require.Len(t, notifier.scansDone, 1)
	assert.Empty(t, notifier.scansFailed)
}

func TestScanClassifiesNewChangedAndKnownFiles(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addFile("root", "file-changed", "edited.txt", "text/plain", 10, now.Add(time.Hour))
	src.addFile("root", "file-known", "stable.txt", "text/plain", 10, now.Add(-time.Hour))
	src.addFile("root", "file-new", "fresh.txt", "text/plain", 10, now)

	store := db.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"file-changed", "file-known"} {
		require.NoError(t, store.UpsertPendingDocument(ctx, &models.Document{
			DriveFileID: id,
			FileName:    id + ".txt",
			MimeType:    "text/plain",
			FolderID:    "root",
		}))
	}

	scanner, _ := newScanner(t, store, src)
	sess, err := scanner.Run(ctx, "root", "incremental")
	require.NoError(t, err)

	assert.Equal(t, 1, sess.NewItemsFound)
	assert.Equal(t, 1, sess.ChangedItemsFound)
	assert.Equal(t, 3, sess.ScannedItems)
}

func TestScanToleratesUnreadableSubfolder(t *testing.T) {
	src := newFakeSource()
	src.addFile("root", "file-1", "a.txt", "text/plain", 5, time.Time{})
	src.addFolder("root", "sub-broken", "broken")
	src.listErrs["sub-broken"] = errors.New("permission denied")

	store := db.NewMemoryStore()
	scanner, notifier := newScanner(t, store, src)
	ctx := context.Background()

	sess, err := scanner.Run(ctx, "root", "full")
	require.NoError(t, err, "a broken sub-folder must not fail the session")
	assert.Equal(t, models.ScanCompleted, sess.Status)
	assert.Equal(t, 1, sess.TotalItems)
	assert.Equal(t, 1, sess.ScannedItems)

	entries, err := store.ListScanProgress(ctx, sess.SessionID, 0)
	require.NoError(t, err)
	var failedFolder bool
	for _, e := range entries {
		if e.ItemType == "folder" && e.Status == "failed" && e.ItemID == "sub-broken" {
			failedFolder = true
			assert.Contains(t, e.ErrorMessage, "permission denied")
		}
	}
	assert.True(t, failedFolder, "the unreadable folder leaves a failed progress entry")
	require.Len(t, notifier.scansDone, 1)
}

func TestScanFailsWhenRootUnreadable(t *testing.T) {
	src := newFakeSource()
	src.listErrs["root"] = errors.New("folder not shared with service account")

	store := db.NewMemoryStore()
	scanner, notifier := newScanner(t, store, src)
	ctx := context.Background()

	sess, err := scanner.Run(ctx, "root", "full")
	require.Error(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, models.ScanFailed, sess.Status)
	assert.Contains(t, sess.ErrorMessage, "not shared")
	assert.NotNil(t, sess.CompletedAt)

	require.Len(t, notifier.scansFailed, 1)
	assert.Empty(t, notifier.scansDone)
}

func TestScanUpdatesRegisteredFolderStats(t *testing.T) {
	src := newFakeSource()
	src.addFile("root", "file-1", "a.txt", "text/plain", 5, time.Time{})

	store := db.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertFolder(ctx, &models.DriveFolder{
		FolderID:   "root",
		FolderName: "Shared Documents",
		IsActive:   true,
	}))

	scanner, _ := newScanner(t, store, src)
	_, err := scanner.Run(ctx, "root", "full")
	require.NoError(t, err)

	folder, err := store.GetFolder(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, folder.LastScanStatus)
	assert.Equal(t, 1, folder.TotalItemsCount)
	assert.Equal(t, 1, folder.ScannedItemsCount)
	assert.NotNil(t, folder.LastScanAt)
}

func TestScanOfUnregisteredFolderStillCompletes(t *testing.T) {
	src := newFakeSource()
	src.addFile("root", "file-1", "a.txt", "text/plain", 5, time.Time{})

	store := db.NewMemoryStore()
	scanner, _ := newScanner(t, store, src)

	sess, err := scanner.Run(context.Background(), "root", "full")
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, sess.Status)
}

func TestScanPaginatesLargeFolders(t *testing.T) {
	src := newFakeSource()
	var pageOne, pageTwo []models.FileItem
	for i := 0; i < 3; i++ {
		pageOne = append(pageOne, models.FileItem{
			ID:       fmt.Sprintf("file-a%d", i),
			Name:     fmt.Sprintf("a%d.txt", i),
			MimeType: "text/plain",
			Size:     10,
		})
	}
	for i := 0; i < 2; i++ {
		pageTwo = append(pageTwo, models.FileItem{
			ID:       fmt.Sprintf("file-b%d", i),
			Name:     fmt.Sprintf("b%d.txt", i),
			MimeType: "text/plain",
			Size:     10,
		})
	}
	src.pages["root"] = [][]models.FileItem{pageOne, pageTwo}

	store := db.NewMemoryStore()
	scanner, _ := newScanner(t, store, src)
	ctx := context.Background()

	sess, err := scanner.Run(ctx, "root", "full")
	require.NoError(t, err)
	assert.Equal(t, 5, sess.TotalItems)
	assert.Equal(t, 5, sess.ScannedItems)
	assert.Equal(t, int64(50), sess.TotalSizeBytes)

	entries, err := store.ListScanProgress(ctx, sess.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestScanRecursesNestedFolders(t *testing.T) {
	src := newFakeSource()
	src.addFile("root", "file-top", "top.txt", "text/plain", 1, time.Time{})
	src.addFolder("root", "sub-1", "level one")
	src.addFile("sub-1", "file-mid", "mid.txt", "text/plain", 2, time.Time{})
	src.addFolder("sub-1", "sub-2", "level two")
	src.addFile("sub-2", "file-deep", "deep.pdf", "application/pdf", 3, time.Time{})

	store := db.NewMemoryStore()
	scanner, _ := newScanner(t, store, src)
	ctx := context.Background()

	sess, err := scanner.Run(ctx, "root", "full")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.TotalItems)
	assert.Equal(t, 3, sess.ScannedItems)
	assert.Equal(t, int64(6), sess.TotalSizeBytes)

	entries, err := store.ListScanProgress(ctx, sess.SessionID, 0)
	require.NoError(t, err)

	paths := make(map[string]string, len(entries))
	for _, e := range entries {
		paths[e.ItemID] = e.ItemPath
	}
	assert.Equal(t, "/level one/level two/deep.pdf", paths["file-deep"])
}
