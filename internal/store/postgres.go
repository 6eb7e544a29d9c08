package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/scrape-cleaner/internal/db"
	"github.com/sells-group/scrape-cleaner/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cleaning_runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id        TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	total_records INTEGER NOT NULL DEFAULT 0,
	overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	metrics       JSONB NOT NULL,
	report        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cleaned_records (
	run_id             TEXT NOT NULL REFERENCES cleaning_runs(id) ON DELETE CASCADE,
	position           INTEGER NOT NULL,
	record_id          TEXT NOT NULL,
	job_id             TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	content_type       TEXT NOT NULL DEFAULT 'html',
	confidence_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	data_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	valid              BOOLEAN NOT NULL DEFAULT false,
	corrected          BOOLEAN NOT NULL DEFAULT false,
	content            JSONB NOT NULL,
	validation_errors  JSONB NOT NULL DEFAULT '[]'::jsonb,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_cleaning_runs_job_id ON cleaning_runs(job_id);
CREATE INDEX IF NOT EXISTS idx_cleaning_runs_created_at ON cleaning_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cleaned_records_record_id ON cleaned_records(record_id);
`

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun inserts or replaces a run. A missing ID or timestamp is filled in.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.CleaningRun) error {
	prepareRun(run, uuid.NewString)
	metrics, report, err := encodeRun(run)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cleaning_runs (id, job_id, source, total_records, overall_score, metrics, report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			source = EXCLUDED.source,
			total_records = EXCLUDED.total_records,
			overall_score = EXCLUDED.overall_score,
			metrics = EXCLUDED.metrics,
			report = EXCLUDED.report`,
		run.ID, run.JobID, run.Source, run.Metrics.TotalRecords, run.Metrics.OverallScore,
		metrics, report, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

// GetRun loads a run by ID. A missing run returns ErrNotFound.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.CleaningRun, error) {
	var (
		r               model.CleaningRun
		metrics, report []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, source, metrics, report, created_at FROM cleaning_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.JobID, &r.Source, &metrics, &report, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if err := decodeRun(&r, metrics, report); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CleaningRun, error) {
	query := `SELECT id, job_id, source, metrics, report, created_at FROM cleaning_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(` AND job_id = $%d`, argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.CleaningRun{}
	for rows.Next() {
		var (
			r               model.CleaningRun
			metrics, report []byte
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.Source, &metrics, &report, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.CreatedAt = r.CreatedAt.UTC()
		if err := decodeRun(&r, metrics, report); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveRecords stores the cleaned records of a run with COPY through a
// staging table, replacing any previously saved for the same positions.
func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error) {
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		enc, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			runID, int32(i), r.ID, r.JobID, r.URL, string(r.ContentType),
			r.ConfidenceScore, r.QualityScore, r.Valid, r.Corrected,
			enc.content, enc.errors,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "cleaned_records",
		Columns:      recordColumns,
		ConflictKeys: []string{"run_id", "position"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save records of %s", runID)
	}
	return n, nil
}

// ListRecords returns the saved records of a run in their original order.
func (s *PostgresStore) ListRecords(ctx context.Context, runID string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_id, job_id, url, content_type, confidence_score, data_quality_score,
		        valid, corrected, content, validation_errors
		 FROM cleaned_records WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list records of %s", runID)
	}
	defer rows.Close()

	out := []model.Record{}
	for rows.Next() {
		var (
			r                model.Record
			ctype            string
			content, errJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.URL, &ctype, &r.ConfidenceScore, &r.QualityScore,
			&r.Valid, &r.Corrected, &content, &errJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.ContentType = model.ContentType(ctype)
		if err := decodeRecord(&r, content, errJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}
