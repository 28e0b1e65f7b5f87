package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/drivevectorai/backend/internal/config"
	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/core/database/migrations"
	"github.com/drivevectorai/backend/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

var _ core.Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Document operations.

func (s *PostgresStore) UpsertPendingDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(drive_file_id, file_name, mime_type, resource_type, drive_url, folder_id, job_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		ON CONFLICT (drive_file_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			resource_type = EXCLUDED.resource_type,
			drive_url = EXCLUDED.drive_url,
			folder_id = EXCLUDED.folder_id,
			job_id = EXCLUDED.job_id,
			status = 'pending',
			error_message = '',
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, q,
		doc.DriveFileID, doc.FileName, doc.MimeType, doc.ResourceType, doc.DriveURL, doc.FolderID, doc.JobID)
	return err
}

func (s *PostgresStore) TransitionDocumentStatus(ctx context.Context, driveFileID, status, errorMessage string) error {
	const q = `
		UPDATE documents
		SET status = $2,
			error_message = $3,
			processed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE processed_at END,
			updated_at = now()
		WHERE drive_file_id = $1
	`
	res, err := s.db.ExecContext(ctx, q, driveFileID, status, errorMessage)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) StoreDocumentResult(ctx context.Context, driveFileID string, r *models.DocumentResult) error {
	if r == nil {
		return errors.New("nil result")
	}
	const q = `
		UPDATE documents
		SET resource_type = $2,
			text_snippet = $3,
			full_text_length = $4,
			embedding = $5,
			checksum = $6,
			status = 'completed',
			error_message = '',
			processed_at = now(),
			updated_at = now()
		WHERE drive_file_id = $1 AND status IN ('processing', 'completed')
	`
	var vec any
	if len(r.Embedding) > 0 {
		vec = pgvector.NewVector(r.Embedding)
	}
	res, err := s.db.ExecContext(ctx, q,
		driveFileID, r.ResourceType, r.TextSnippet, r.FullTextLength, vec, r.Checksum)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrInvalidTransition)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentEnrichment(ctx context.Context, driveFileID string, enr *models.Enrichment) error {
	if enr == nil {
		return errors.New("nil enrichment")
	}
	keywords, err := jsonStrings(enr.Keywords)
	if err != nil {
		return err
	}
	categories, err := jsonStrings(enr.Categories)
	if err != nil {
		return err
	}
	const q = `
		UPDATE documents
		SET ai_summary = $2,
			ai_keywords = $3,
			ai_categories = $4,
			language = $5,
			sentiment_score = $6,
			reading_time_min = $7,
			enriched_at = now(),
			updated_at = now()
		WHERE drive_file_id = $1
	`
	res, err := s.db.ExecContext(ctx, q,
		driveFileID, enr.Summary, keywords, categories, enr.Language, enr.SentimentScore, enr.ReadingTimeMin)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	return nil
}

// docColumns lists every document column except the embedding, which is
// write-only outside of search.
const docColumns = `
	id, drive_file_id, file_name, mime_type, resource_type, drive_url, folder_id, job_id,
	status, error_message, text_snippet, full_text_length, checksum,
	ai_summary, ai_keywords, ai_categories, custom_tags, language, sentiment_score, reading_time_min,
	processed_at, enriched_at, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d          models.Document
		keywords   []byte
		categories []byte
		tags       []byte
	)
	err := row.Scan(
		&d.ID, &d.DriveFileID, &d.FileName, &d.MimeType, &d.ResourceType, &d.DriveURL, &d.FolderID, &d.JobID,
		&d.Status, &d.ErrorMessage, &d.TextSnippet, &d.FullTextLength, &d.Checksum,
		&d.AISummary, &keywords, &categories, &tags, &d.Language, &d.SentimentScore, &d.ReadingTimeMin,
		&d.ProcessedAt, &d.EnrichedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keywords, &d.AIKeywords); err != nil {
		return nil, fmt.Errorf("decode ai_keywords: %w", err)
	}
	if err := json.Unmarshal(categories, &d.AICategories); err != nil {
		return nil, fmt.Errorf("decode ai_categories: %w", err)
	}
	if err := json.Unmarshal(tags, &d.CustomTags); err != nil {
		return nil, fmt.Errorf("decode custom_tags: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, driveFileID string) (*models.Document, error) {
	q := `SELECT ` + docColumns + ` FROM documents WHERE drive_file_id = $1`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, driveFileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// filterClause turns a DocumentFilter into a WHERE clause and its args.
func filterClause(f models.DocumentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.FolderID != "" {
		args = append(args, f.FolderID)
		conds = append(conds, fmt.Sprintf("folder_id = $%d", len(args)))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		conds = append(conds, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListDocuments(ctx context.Context, f models.DocumentFilter) ([]models.Document, error) {
	where, args := filterClause(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q := `SELECT ` + docColumns + ` FROM documents` + where +
		fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountDocuments(ctx context.Context, f models.DocumentFilter) (int, error) {
	where, args := filterClause(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&n)
	return n, err
}

func (s *PostgresStore) DocumentExists(ctx context.Context, driveFileID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM documents WHERE drive_file_id = $1)`
	var exists bool
	err := s.db.QueryRowContext(ctx, q, driveFileID).Scan(&exists)
	return exists, err
}

// DeleteDocument removes the document together with its versions and logs.
// Those tables carry no FK to documents (logs must be writable even when the
// document row never made it in), so the cleanup is one transaction here.
func (s *PostgresStore) DeleteDocument(ctx context.Context, driveFileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_versions WHERE drive_file_id = $1`, driveFileID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM processing_logs WHERE drive_file_id = $1`, driveFileID); err != nil {
		_ = tx.Rollback()
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE drive_file_id = $1`, driveFileID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("document %s: %w", driveFileID, core.ErrNotFound)
	}
	return tx.Commit()
}

// SearchDocuments ranks completed documents by cosine distance and reports
// similarity as 1 - distance.
func (s *PostgresStore) SearchDocuments(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT drive_file_id, file_name, mime_type, drive_url, text_snippet,
			1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE status = 'completed' AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	vec := pgvector.NewVector(embedding)
	rows, err := s.db.QueryContext(ctx, q, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.DriveFileID, &h.FileName, &h.MimeType, &h.DriveURL, &h.TextSnippet, &h.Similarity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// jsonStrings marshals a string slice for a JSONB column, mapping nil to [].
func jsonStrings(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}
