package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

// Scan session operations.

func (s *PostgresStore) CreateScanSession(ctx context.Context, sess *models.ScanSession) error {
	if sess == nil {
		return errors.New("nil scan session")
	}
	const q = `
		INSERT INTO scan_sessions (session_id, folder_id, scan_type, status)
		VALUES ($1, $2, $3, 'in_progress')
	`
	_, err := s.db.ExecContext(ctx, q, sess.SessionID, sess.FolderID, sess.ScanType)
	return err
}

func (s *PostgresStore) UpdateScanSession(ctx context.Context, sessionID string, upd models.ScanSessionUpdate) error {
	var (
		sets []string
		args = []any{sessionID}
	)
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.TotalItems != nil {
		add("total_items", *upd.TotalItems)
	}
	if upd.NewItemsFound != nil {
		add("new_items_found", *upd.NewItemsFound)
	}
	if upd.ChangedItemsFound != nil {
		add("changed_items_found", *upd.ChangedItemsFound)
	}
	if upd.TotalSizeBytes != nil {
		add("total_size_bytes", *upd.TotalSizeBytes)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.Completed {
		sets = append(sets, "completed_at = now()")
	}
	if len(sets) == 0 {
		return nil
	}

	q := "UPDATE scan_sessions SET " + strings.Join(sets, ", ") + " WHERE session_id = $1"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("scan session %s: %w", sessionID, core.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) IncrementScannedItems(ctx context.Context, sessionID string) error {
	const q = `UPDATE scan_sessions SET scanned_items = scanned_items + 1 WHERE session_id = $1`
	res, err := s.db.ExecContext(ctx, q, sessionID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("scan session %s: %w", sessionID, core.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AddScanProgress(ctx context.Context, e *models.ScanProgressEntry) error {
	if e == nil {
		return errors.New("nil scan progress entry")
	}
	const q = `
		INSERT INTO scan_progress (session_id, item_id, item_path, item_type, status, file_size_bytes, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, q,
		e.SessionID, e.ItemID, e.ItemPath, e.ItemType, e.Status, e.FileSizeBytes, e.ErrorMessage)
	return err
}

const scanColumns = `
	session_id, folder_id, scan_type, status, total_items, scanned_items,
	new_items_found, changed_items_found, total_size_bytes, error_message,
	started_at, completed_at
`

func scanSession(row interface{ Scan(...any) error }) (*models.ScanSession, error) {
	var sess models.ScanSession
	err := row.Scan(
		&sess.SessionID, &sess.FolderID, &sess.ScanType, &sess.Status, &sess.TotalItems, &sess.ScannedItems,
		&sess.NewItemsFound, &sess.ChangedItemsFound, &sess.TotalSizeBytes, &sess.ErrorMessage,
		&sess.StartedAt, &sess.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) GetScanSession(ctx context.Context, sessionID string) (*models.ScanSession, error) {
	q := `SELECT ` + scanColumns + ` FROM scan_sessions WHERE session_id = $1`
	sess, err := scanSession(s.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan session %s: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) ListScanSessions(ctx context.Context, folderID string, limit int) ([]models.ScanSession, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + scanColumns + ` FROM scan_sessions`
	args := []any{}
	if folderID != "" {
		q += ` WHERE folder_id = $1`
		args = append(args, folderID)
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScanSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListScanProgress(ctx context.Context, sessionID string, limit int) ([]models.ScanProgressEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT id, session_id, item_id, item_path, item_type, status, file_size_bytes, error_message, processed_at
		FROM scan_progress
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScanProgressEntry
	for rows.Next() {
		var e models.ScanProgressEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ItemID, &e.ItemPath, &e.ItemType, &e.Status,
			&e.FileSizeBytes, &e.ErrorMessage, &e.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Drive folder operations.

func (s *PostgresStore) UpsertFolder(ctx context.Context, f *models.DriveFolder) error {
	if f == nil {
		return errors.New("nil folder")
	}
	const q = `
		INSERT INTO drive_folders (folder_id, folder_name, description, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (folder_id) DO UPDATE SET
			folder_name = EXCLUDED.folder_name,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, q, f.FolderID, f.FolderName, f.Description, f.IsActive)
	return err
}

const folderColumns = `
	folder_id, folder_name, description, is_active, last_scan_at, last_scan_status,
	total_items_count, scanned_items_count, created_at, updated_at
`

func scanFolder(row interface{ Scan(...any) error }) (*models.DriveFolder, error) {
	var f models.DriveFolder
	err := row.Scan(
		&f.FolderID, &f.FolderName, &f.Description, &f.IsActive, &f.LastScanAt, &f.LastScanStatus,
		&f.TotalItemsCount, &f.ScannedItemsCount, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, folderID string) (*models.DriveFolder, error) {
	q := `SELECT ` + folderColumns + ` FROM drive_folders WHERE folder_id = $1`
	f, err := scanFolder(s.db.QueryRowContext(ctx, q, folderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", folderID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *PostgresStore) ListFolders(ctx context.Context, activeOnly bool) ([]models.DriveFolder, error) {
	q := `SELECT ` + folderColumns + ` FROM drive_folders`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DriveFolder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteFolder(ctx context.Context, folderID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drive_folders WHERE folder_id = $1`, folderID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("folder %s: %w", folderID, core.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateFolderScanStats(ctx context.Context, folderID string, totalItems, scannedItems int, status string) error {
	const q = `
		UPDATE drive_folders
		SET last_scan_at = now(),
			last_scan_status = $2,
			total_items_count = $3,
			scanned_items_count = $4,
			updated_at = now()
		WHERE folder_id = $1
	`
	res, err := s.db.ExecContext(ctx, q, folderID, status, totalItems, scannedItems)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("folder %s: %w", folderID, core.ErrNotFound)
	}
	return nil
}
