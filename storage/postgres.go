package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS docxblank_jobs (
	id              TEXT PRIMARY KEY,
	filename        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	progress        INTEGER NOT NULL DEFAULT 0,
	marked_pages    INTEGER[] NOT NULL DEFAULT '{}',
	processed_pages INTEGER[] NOT NULL DEFAULT '{}',
	remaining_pages INTEGER[] NOT NULL DEFAULT '{}',
	state           TEXT,
	attempts        INTEGER NOT NULL DEFAULT 0,
	message         TEXT,
	output_path     TEXT,
	error_code      TEXT,
	error_message   TEXT,
	pages           JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore persists job records in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the database and verifies the connection
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the jobs table if it does not exist
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveResult inserts or updates a job record
func (p *PostgresStore) SaveResult(ctx context.Context, record *JobRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	pagesJSON, err := json.Marshal(record.Pages)
	if err != nil {
		return fmt.Errorf("failed to marshal page states: %w", err)
	}

	query := `
		INSERT INTO docxblank_jobs (
			id, filename, status, progress,
			marked_pages, processed_pages, remaining_pages,
			state, attempts, message, output_path,
			error_code, error_message, pages,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			NULLIF($8, ''), $9, NULLIF($10, ''), NULLIF($11, ''),
			NULLIF($12, ''), NULLIF($13, ''), $14,
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			marked_pages = EXCLUDED.marked_pages,
			processed_pages = EXCLUDED.processed_pages,
			remaining_pages = EXCLUDED.remaining_pages,
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			message = EXCLUDED.message,
			output_path = EXCLUDED.output_path,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			pages = EXCLUDED.pages,
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		record.ID,
		record.Filename,
		string(record.Status),
		record.Progress,
		pq.Array(toInt64s(record.MarkedPages)),
		pq.Array(toInt64s(record.ProcessedPages)),
		pq.Array(toInt64s(record.RemainingPages)),
		record.State,
		record.Attempts,
		record.Message,
		record.OutputPath,
		record.ErrorCode,
		record.ErrorMessage,
		pagesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", record.ID, err)
	}
	return nil
}

// GetResult loads a job record by ID
func (p *PostgresStore) GetResult(ctx context.Context, id string) (*JobRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, filename, status, progress,
			marked_pages, processed_pages, remaining_pages,
			state, attempts, message, output_path,
			error_code, error_message, pages,
			created_at, updated_at
		FROM docxblank_jobs
		WHERE id = $1
	`

	var (
		record                       JobRecord
		status                       string
		marked, processed, remaining pq.Int64Array
		state, message, outputPath   sql.NullString
		errorCode, errorMessage      sql.NullString
		pagesJSON                    []byte
	)

	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.Filename, &status, &record.Progress,
		&marked, &processed, &remaining,
		&state, &record.Attempts, &message, &outputPath,
		&errorCode, &errorMessage, &pagesJSON,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	record.Status = JobStatus(status)
	record.MarkedPages = fromInt64s(marked)
	record.ProcessedPages = fromInt64s(processed)
	record.RemainingPages = fromInt64s(remaining)
	record.State = state.String
	record.Message = message.String
	record.OutputPath = outputPath.String
	record.ErrorCode = errorCode.String
	record.ErrorMessage = errorMessage.String

	if len(pagesJSON) > 0 {
		if err := json.Unmarshal(pagesJSON, &record.Pages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page states: %w", err)
		}
	}

	return &record, nil
}

// Ping checks database connectivity
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func toInt64s(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func fromInt64s(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
