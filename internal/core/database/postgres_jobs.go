package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

// Ingestion job operations.

func (s *PostgresStore) CreateIngestionJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO ingestion_jobs (job_id, folder_id, status, total_files)
		VALUES ($1, $2, 'running', $3)
	`
	_, err := s.db.ExecContext(ctx, q, job.JobID, job.FolderID, job.TotalFiles)
	return err
}

const jobColumns = `
	job_id, folder_id, status, total_files, processed_files, failed_files,
	error_message, started_at, completed_at
`

func scanJob(row interface{ Scan(...any) error }) (*models.IngestionJob, error) {
	var j models.IngestionJob
	err := row.Scan(
		&j.JobID, &j.FolderID, &j.Status, &j.TotalFiles, &j.ProcessedFiles, &j.FailedFiles,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) GetIngestionJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE job_id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) ListIngestionJobs(ctx context.Context, limit, offset int) ([]models.IngestionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs ORDER BY started_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IngestionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IncrementJobProgress(ctx context.Context, jobID string, processedDelta, failedDelta int) error {
	const q = `
		UPDATE ingestion_jobs
		SET processed_files = processed_files + $2,
			failed_files = failed_files + $3
		WHERE job_id = $1
	`
	res, err := s.db.ExecContext(ctx, q, jobID, processedDelta, failedDelta)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, core.ErrNotFound)
	}
	return nil
}

// TryCompleteJob relies on a single guarded UPDATE so that exactly one of
// the racing workers flips the job to completed. Losers match zero rows.
func (s *PostgresStore) TryCompleteJob(ctx context.Context, jobID string) (*models.IngestionJob, bool, error) {
	q := `
		UPDATE ingestion_jobs
		SET status = 'completed',
			completed_at = now(),
			error_message = CASE
				WHEN failed_files > 0 THEN failed_files::text || ' of ' || total_files::text || ' files failed'
				ELSE error_message
			END
		WHERE job_id = $1 AND status = 'running' AND processed_files >= total_files
		RETURNING ` + jobColumns
	job, err := scanJob(s.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, errorMessage string) error {
	const q = `
		UPDATE ingestion_jobs
		SET status = 'failed', error_message = $2, completed_at = now()
		WHERE job_id = $1 AND status = 'running'
	`
	res, err := s.db.ExecContext(ctx, q, jobID, errorMessage)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s not running: %w", jobID, core.ErrInvalidTransition)
	}
	return nil
}
