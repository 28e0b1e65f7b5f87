package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drivevectorai/backend/internal/core"
	db "github.com/drivevectorai/backend/internal/core/database"
	"github.com/drivevectorai/backend/internal/core/extract"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

// fakeSource serves folder listings and file bodies from maps. GetContent
// can be told to fail a number of times before succeeding, to drive the
// retry paths.
type fakeSource struct {
	mu           sync.Mutex
	folders      map[string][]models.FileItem
	pages        map[string][][]models.FileItem
	contents     map[string][]byte
	contentFails map[string]int
	listErrs     map[string]error
	downloads    map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		folders:      make(map[string][]models.FileItem),
		pages:        make(map[string][][]models.FileItem),
		contents:     make(map[string][]byte),
		contentFails: make(map[string]int),
		listErrs:     make(map[string]error),
		downloads:    make(map[string]int),
	}
}

func (f *fakeSource) addFile(folderID, id, name, mimeType string, content []byte) {
	f.folders[folderID] = append(f.folders[folderID], models.FileItem{
		ID:       id,
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(content)),
	})
	f.contents[id] = content
}

func (f *fakeSource) addFolder(parentID, id, name string) {
	f.folders[parentID] = append(f.folders[parentID], models.FileItem{
		ID:       id,
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		IsFolder: true,
	})
}

func (f *fakeSource) ListChildren(ctx context.Context, folderID, pageToken string) ([]models.FileItem, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[fileID]++
	if n := f.contentFails[fileID]; n > 0 {
		f.contentFails[fileID] = n - 1
		return nil, errors.New("temporary source outage")
	}
	data, ok := f.contents[fileID]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", fileID, core.ErrNotFound)
	}
	return data, nil
}

func (f *fakeSource) downloadCount(fileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[fileID]
}

type fakeEmbedder struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("embedding service unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEnricher struct {
	enrichment *models.Enrichment
	err        error
}

func (f *fakeEnricher) EnrichDocument(ctx context.Context, text string) (*models.Enrichment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.enrichment, nil
}

// spyNotifier records every notification call.
type spyNotifier struct {
	mu            sync.Mutex
	jobsCompleted []*models.IngestionJob
	jobsFailed    []*models.IngestionJob
	scansDone     []*models.ScanSession
	scansFailed   []*models.ScanSession
}

func (s *spyNotifier) JobCompleted(ctx context.Context, job *models.IngestionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobsCompleted = append(s.jobsCompleted, job)
}

func (s *spyNotifier) JobFailed(ctx context.Context, job *models.IngestionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobsFailed = append(s.jobsFailed, job)
}

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

func (s *spyNotifier) completedJobs() []*models.IngestionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.IngestionJob(nil), s.jobsCompleted...)
}

// rig assembles a full pipeline on the in-memory store with fast retries.
type rig struct {
	store    *db.MemoryStore
	source   *fakeSource
	embedder *fakeEmbedder
	notifier *spyNotifier
	proc     *Processor
	runner   *TaskRunner
	orch     *Orchestrator
}

func newRig(t *testing.T, store *db.MemoryStore, source *fakeSource, enricher core.Enricher, workers int) *rig {
	t.Helper()

	logger := logging.NewDiscard()
	embedder := &fakeEmbedder{}
	notifier := &spyNotifier{}
	proc := NewProcessor(store, source, extract.NewRegistry(), embedder, enricher, notifier, logger, ProcessorConfig{})
	runner, err := NewTaskRunner(proc, logger, RunnerConfig{
		Workers:     workers,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		TaskTimeout: time.Minute,
	})
	require.NoError(t, err)

	return &rig{
		store:    store,
		source:   source,
		embedder: embedder,
		notifier: notifier,
		proc:     proc,
		runner:   runner,
		orch:     NewOrchestrator(store, source, runner, notifier, logger),
	}
}
