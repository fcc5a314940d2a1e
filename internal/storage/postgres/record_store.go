// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldworks/postwatch/internal/crawl"
)

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("not found")

// db is the slice of pgxpool.Pool the store uses; pgxmock satisfies it.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordStore mirrors crawl runs and extracted records into Postgres.
// Checkpoint files stay authoritative for resume; the store exists for
// querying across runs.
//
// Schema:
//
//	CREATE TABLE crawl_runs (
//	    id          uuid PRIMARY KEY,
//	    started_at  timestamptz NOT NULL,
//	    finished_at timestamptz,
//	    records     bigint NOT NULL DEFAULT 0
//	);
//	CREATE TABLE job_records (
//	    job_id      text NOT NULL,
//	    run_id      uuid NOT NULL REFERENCES crawl_runs (id),
//	    target      text NOT NULL,
//	    title       text NOT NULL,
//	    location    text,
//	    salary      text,
//	    posted      text,
//	    description text,
//	    permalink   text,
//	    scraped_at  timestamptz NOT NULL,
//	    PRIMARY KEY (job_id, run_id)
//	);
type RecordStore struct {
	db   db
	pool *pgxpool.Pool
}

// NewRecordStore connects a pool to dsn.
func NewRecordStore(ctx context.Context, dsn string) (*RecordStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &RecordStore{db: pool, pool: pool}, nil
}

// NewRecordStoreWithDB builds a store over an existing connection, used by
// tests with pgxmock.
func NewRecordStoreWithDB(conn db) *RecordStore {
	return &RecordStore{db: conn}
}

// Close closes the underlying connection pool, if the store owns one.
func (s *RecordStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// BeginRun registers a run as started.
func (s *RecordStore) BeginRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, runID, startedAt); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stamps a run's finish time and total record count.
func (s *RecordStore) FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, records int) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, records = $2
		WHERE id = $3;
	`
	tag, err := s.db.Exec(ctx, query, finishedAt, records, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRecords upserts a target's records for a run. Re-checkpointing the
// same page after recovery overwrites rather than duplicates.
func (s *RecordStore) SaveRecords(ctx context.Context, runID uuid.UUID, records []crawl.Record) error {
	query := `
		INSERT INTO job_records
			(job_id, run_id, target, title, location, salary, posted, description, permalink, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id, run_id) DO UPDATE
		SET title = EXCLUDED.title,
			location = EXCLUDED.location,
			salary = EXCLUDED.salary,
			posted = EXCLUDED.posted,
			description = EXCLUDED.description,
			permalink = EXCLUDED.permalink,
			scraped_at = EXCLUDED.scraped_at;
	`
	for _, rec := range records {
		_, err := s.db.Exec(ctx, query,
			rec.RecordID,
			runID,
			rec.Company,
			rec.Title,
			rec.Location,
			rec.Salary,
			rec.Posted,
			rec.Description,
			rec.Permalink,
			rec.ScrapedAt,
		)
		if err != nil {
			return fmt.Errorf("save record %s: %w", rec.RecordID, err)
		}
	}
	return nil
}

// CountRecords returns the number of records stored for a run.
func (s *RecordStore) CountRecords(ctx context.Context, runID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM job_records WHERE run_id = $1;`
	var count int
	if err := s.db.QueryRow(ctx, query, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// ListRecords returns a run's records for one target in extraction order.
func (s *RecordStore) ListRecords(ctx context.Context, runID uuid.UUID, target string) ([]crawl.Record, error) {
	query := `
		SELECT job_id, target, title, location, salary, posted, description, permalink, scraped_at
		FROM job_records
		WHERE run_id = $1 AND target = $2
		ORDER BY scraped_at;
	`
	rows, err := s.db.Query(ctx, query, runID, target)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []crawl.Record
	for rows.Next() {
		var rec crawl.Record
		err := rows.Scan(
			&rec.RecordID,
			&rec.Company,
			&rec.Title,
			&rec.Location,
			&rec.Salary,
			&rec.Posted,
			&rec.Description,
			&rec.Permalink,
			&rec.ScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}
