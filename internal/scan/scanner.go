// Package scan implements recursive folder scanning: a counting pass that
// sizes the session up front, then a scan pass that records per-item
// progress and detects new and changed files without ingesting anything.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/models"
)

// Scanner walks a drive folder tree. Only files count toward session totals;
// folders are recursed into and recorded as progress entries, but an empty
// sub-folder never keeps a session from reaching 100%.
type Scanner struct {
	store     core.Store
	source    core.FileSource
	extractor core.TextExtractor
	notifier  core.Notifier
	logger    logging.Logger
}

func NewScanner(store core.Store, source core.FileSource, extractor core.TextExtractor, notifier core.Notifier, logger logging.Logger) *Scanner {
	return &Scanner{
		store:     store,
		source:    source,
		extractor: extractor,
		notifier:  notifier,
		logger:    logger,
	}
}

type tally struct {
	newItems       int
	changedItems   int
	newProcessable int
}

// Run performs a full scan of the folder and blocks until it finishes,
// returning the final session. scanType is recorded as-is ("full" or
// "incremental").
func (s *Scanner) Run(ctx context.Context, folderID, scanType string) (*models.ScanSession, error) {
	sess, err := s.createSession(ctx, folderID, scanType)
	if err != nil {
		return nil, err
	}
	return s.runSession(ctx, sess)
}

// Start creates the session and runs the scan in the background, so callers
// can return the session id immediately and poll for progress.
func (s *Scanner) Start(ctx context.Context, folderID, scanType string) (*models.ScanSession, error) {
	sess, err := s.createSession(ctx, folderID, scanType)
	if err != nil {
		return nil, err
	}
	started := *sess
	go func() {
		bctx := context.Background()
		if _, err := s.runSession(bctx, sess); err != nil {
			s.logger.Error(bctx, "background scan failed",
				"session_id", sess.SessionID, "folder_id", folderID, "error", err)
		}
	}()
	return &started, nil
}

func (s *Scanner) createSession(ctx context.Context, folderID, scanType string) (*models.ScanSession, error) {
	sess := &models.ScanSession{
		SessionID: uuid.NewString(),
		FolderID:  folderID,
		ScanType:  scanType,
		Status:    models.ScanInProgress,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateScanSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create scan session: %w", err)
	}
	return sess, nil
}

func (s *Scanner) runSession(ctx context.Context, sess *models.ScanSession) (*models.ScanSession, error) {
	folderID := sess.FolderID
	log := s.logger.With("session_id", sess.SessionID, "folder_id", folderID)

	total, totalSize, err := s.countFiles(ctx, folderID)
	if err != nil {
		return s.fail(ctx, sess.SessionID, folderID, fmt.Errorf("count folder items: %w", err))
	}
	upd := models.ScanSessionUpdate{TotalItems: &total, TotalSizeBytes: &totalSize}
	if err := s.store.UpdateScanSession(ctx, sess.SessionID, upd); err != nil {
		return s.fail(ctx, sess.SessionID, folderID, fmt.Errorf("store scan totals: %w", err))
	}
	log.Info(ctx, "scan started", "scan_type", sess.ScanType, "total_items", total, "total_size_bytes", totalSize)

	tl := &tally{}
	if err := s.scanFolder(ctx, sess.SessionID, folderID, "", true, tl); err != nil {
		return s.fail(ctx, sess.SessionID, folderID, err)
	}

	status := models.ScanCompleted
	done := models.ScanSessionUpdate{
		Status:            &status,
		NewItemsFound:     &tl.newItems,
		ChangedItemsFound: &tl.changedItems,
		Completed:         true,
	}
	if err := s.store.UpdateScanSession(ctx, sess.SessionID, done); err != nil {
		return s.fail(ctx, sess.SessionID, folderID, fmt.Errorf("finish scan session: %w", err))
	}

	final, err := s.store.GetScanSession(ctx, sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load scan session: %w", err)
	}
	s.updateFolderStats(ctx, folderID, final.TotalItems, final.ScannedItems, models.ScanCompleted)
	log.Info(ctx, "scan completed",
		"scanned_items", final.ScannedItems,
		"new_items", tl.newItems,
		"changed_items", tl.changedItems,
		"new_processable", tl.newProcessable)
	if s.notifier != nil {
		s.notifier.ScanCompleted(ctx, final)
	}
	return final, nil
}

// countFiles sizes the tree before scanning so progress can be reported as a
// percentage. Unreadable sub-folders are skipped in the same way the scan
// pass skips them, keeping both passes consistent.
func (s *Scanner) countFiles(ctx context.Context, folderID string) (int, int64, error) {
	var total int
	var size int64

	var walk func(id string, root bool) error
	walk = func(id string, root bool) error {
		pageToken := ""
		for {
			items, next, err := s.source.ListChildren(ctx, id, pageToken)
			if err != nil {
				if root {
					return err
				}
				s.logger.Warn(ctx, "counting pass: skipping unreadable folder", "folder_id", id, "error", err)
				return nil
			}
			for _, it := range items {
				if it.IsFolder {
					if err := walk(it.ID, false); err != nil {
						return err
					}
					continue
				}
				total++
				size += it.Size
			}
			if next == "" {
				return nil
			}
			pageToken = next
		}
	}

	err := walk(folderID, true)
	return total, size, err
}

// scanFolder walks one folder. A listing failure is fatal only at the root;
// anywhere deeper it records a failed progress entry for the folder and
// moves on.
func (s *Scanner) scanFolder(ctx context.Context, sessionID, folderID, path string, root bool, tl *tally) error {
	pageToken := ""
	for {
		items, next, err := s.source.ListChildren(ctx, folderID, pageToken)
		if err != nil {
			if root {
				return fmt.Errorf("list folder %s: %w", folderID, err)
			}
			s.logger.Warn(ctx, "scan: skipping unreadable folder", "folder_id", folderID, "error", err)
			s.addProgress(ctx, &models.ScanProgressEntry{
				SessionID:    sessionID,
				ItemID:       folderID,
				ItemPath:     path,
				ItemType:     "folder",
				Status:       "failed",
				ErrorMessage: err.Error(),
			})
			return nil
		}
		for _, it := range items {
			itemPath := path + "/" + it.Name
			if it.IsFolder {
				s.addProgress(ctx, &models.ScanProgressEntry{
					SessionID: sessionID,
					ItemID:    it.ID,
					ItemPath:  itemPath,
					ItemType:  "folder",
					Status:    "scanned",
				})
				if err := s.scanFolder(ctx, sessionID, it.ID, itemPath, false, tl); err != nil {
					return err
				}
				continue
			}
			s.scanFile(ctx, sessionID, it, itemPath, tl)
		}
		if next == "" {
			return nil
		}
		pageToken = next
	}
}

// scanFile classifies one file as new, changed or known and records it. The
// scanned counter moves for every file, including ones whose store lookup
// failed, so the session always converges on its total.
func (s *Scanner) scanFile(ctx context.Context, sessionID string, it models.FileItem, itemPath string, tl *tally) {
	entry := &models.ScanProgressEntry{
		SessionID:     sessionID,
		ItemID:        it.ID,
		ItemPath:      itemPath,
		ItemType:      "file",
		Status:        "scanned",
		FileSizeBytes: it.Size,
	}

	exists, err := s.store.DocumentExists(ctx, it.ID)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "scan: document lookup failed", "drive_file_id", it.ID, "error", err)
		entry.Status = "failed"
		entry.ErrorMessage = err.Error()
	case !exists:
		tl.newItems++
		if s.extractor.Supported(it.MimeType) {
			tl.newProcessable++
			s.logger.Debug(ctx, "scan: new processable file", "drive_file_id", it.ID, "path", itemPath)
		}
	default:
		if doc, derr := s.store.GetDocument(ctx, it.ID); derr == nil {
			if !it.ModifiedTime.IsZero() && it.ModifiedTime.After(doc.UpdatedAt) {
				tl.changedItems++
			}
		}
	}

	s.addProgress(ctx, entry)
	if err := s.store.IncrementScannedItems(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "scan: increment scanned items", "session_id", sessionID, "error", err)
	}
}

func (s *Scanner) addProgress(ctx context.Context, e *models.ScanProgressEntry) {
	if err := s.store.AddScanProgress(ctx, e); err != nil {
		s.logger.Warn(ctx, "scan: record progress", "session_id", e.SessionID, "item_id", e.ItemID, "error", err)
	}
}

// updateFolderStats denormalizes the outcome onto the folder row when the
// folder is registered; scans of unregistered folders are still valid.
func (s *Scanner) updateFolderStats(ctx context.Context, folderID string, total, scanned int, status string) {
	err := s.store.UpdateFolderScanStats(ctx, folderID, total, scanned, status)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		s.logger.Warn(ctx, "update folder scan stats", "folder_id", folderID, "error", err)
	}
}

// fail marks the session failed, records the cause and notifies. It returns
// the final session alongside the original error.
func (s *Scanner) fail(ctx context.Context, sessionID, folderID string, cause error) (*models.ScanSession, error) {
	s.logger.Error(ctx, "scan failed", "session_id", sessionID, "folder_id", folderID, "error", cause)

	status := models.ScanFailed
	msg := cause.Error()
	upd := models.ScanSessionUpdate{Status: &status, ErrorMessage: &msg, Completed: true}
	if err := s.store.UpdateScanSession(ctx, sessionID, upd); err != nil {
		s.logger.Error(ctx, "mark scan session failed", "session_id", sessionID, "error", err)
	}

	final, err := s.store.GetScanSession(ctx, sessionID)
	if err != nil {
		return nil, cause
	}
	s.updateFolderStats(ctx, folderID, final.TotalItems, final.ScannedItems, models.ScanFailed)
	if s.notifier != nil {
		s.notifier.ScanFailed(ctx, final)
	}
	return final, cause
}
