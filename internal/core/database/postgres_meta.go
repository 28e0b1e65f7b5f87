package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

// Document version operations.

// CreateDocumentVersion assigns the next contiguous version number inside
// the insert itself; the unique (drive_file_id, version_number) constraint
// rejects the rare concurrent duplicate.
func (s *PostgresStore) CreateDocumentVersion(ctx context.Context, v *models.DocumentVersion) (int, error) {
	if v == nil {
		return 0, errors.New("nil version")
	}
	const q = `
		INSERT INTO document_versions
			(drive_file_id, version_number, file_name, file_size_bytes, checksum, changes_summary)
		VALUES (
			$1,
			(SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions WHERE drive_file_id = $1),
			$2, $3, $4, $5
		)
		RETURNING version_number
	`
	var version int
	err := s.db.QueryRowContext(ctx, q,
		v.DriveFileID, v.FileName, v.FileSizeBytes, v.Checksum, v.ChangesSummary).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

const versionColumns = `
	id, drive_file_id, version_number, file_name, file_size_bytes, checksum, changes_summary, created_at
`

func scanVersion(row interface{ Scan(...any) error }) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	err := row.Scan(
		&v.ID, &v.DriveFileID, &v.VersionNumber, &v.FileName, &v.FileSizeBytes,
		&v.Checksum, &v.ChangesSummary, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) LatestDocumentVersion(ctx context.Context, driveFileID string) (*models.DocumentVersion, error) {
	q := `SELECT ` + versionColumns + `
		FROM document_versions
		WHERE drive_file_id = $1
		ORDER BY version_number DESC
		LIMIT 1`
	v, err := scanVersion(s.db.QueryRowContext(ctx, q, driveFileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("versions of %s: %w", driveFileID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStore) ListDocumentVersions(ctx context.Context, driveFileID string, limit int) ([]models.DocumentVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + versionColumns + `
		FROM document_versions
		WHERE drive_file_id = $1
		ORDER BY version_number DESC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, driveFileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Processing log operations.

func (s *PostgresStore) AddProcessingLog(ctx context.Context, e *models.ProcessingLogEntry) error {
	if e == nil {
		return errors.New("nil log entry")
	}
	const q = `
		INSERT INTO processing_logs (drive_file_id, job_id, level, message)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, q, e.DriveFileID, e.JobID, e.Level, e.Message)
	return err
}

func (s *PostgresStore) listLogs(ctx context.Context, column, value string, limit int) ([]models.ProcessingLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`
		SELECT id, drive_file_id, job_id, level, message, created_at
		FROM processing_logs
		WHERE %s = $1
		ORDER BY id DESC
		LIMIT $2
	`, column)
	rows, err := s.db.QueryContext(ctx, q, value, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessingLogEntry
	for rows.Next() {
		var e models.ProcessingLogEntry
		if err := rows.Scan(&e.ID, &e.DriveFileID, &e.JobID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListDocumentLogs(ctx context.Context, driveFileID string, limit int) ([]models.ProcessingLogEntry, error) {
	return s.listLogs(ctx, "drive_file_id", driveFileID, limit)
}

func (s *PostgresStore) ListJobLogs(ctx context.Context, jobID string, limit int) ([]models.ProcessingLogEntry, error) {
	return s.listLogs(ctx, "job_id", jobID, limit)
}

// Notification operations.

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("nil notification")
	}
	meta := n.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	const q = `
		INSERT INTO notifications (id, type, category, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, q, n.ID, n.Type, n.Category, n.Title, n.Message, metaJSON)
	return err
}

func (s *PostgresStore) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, type, category, title, message, metadata, is_read, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n    models.Notification
			meta []byte
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Category, &n.Title, &n.Message, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Statistics.

func (s *PostgresStore) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	var stats models.Statistics

	const docQ = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COALESCE(SUM(full_text_length), 0)
		FROM documents
	`
	if err := s.db.QueryRowContext(ctx, docQ).Scan(
		&stats.TotalDocuments, &stats.CompletedDocuments, &stats.FailedDocuments,
		&stats.PendingDocuments, &stats.ProcessingDocuments, &stats.TotalTextLength,
	); err != nil {
		return nil, fmt.Errorf("document stats: %w", err)
	}

	const jobQ = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM ingestion_jobs
	`
	if err := s.db.QueryRowContext(ctx, jobQ).Scan(
		&stats.TotalJobs, &stats.RunningJobs, &stats.CompletedJobs, &stats.FailedJobs,
	); err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drive_folders`).Scan(&stats.TotalFolders); err != nil {
		return nil, fmt.Errorf("folder stats: %w", err)
	}

	return &stats, nil
}
