package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Per-connection pragmas go in the DSN so every pooled connection gets them.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withConnPragmas(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func withConnPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cleaning_runs (
	id            TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	total_records INTEGER NOT NULL DEFAULT 0,
	overall_score REAL NOT NULL DEFAULT 0,
	metrics       TEXT NOT NULL,
	report        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cleaned_records (
	run_id             TEXT NOT NULL REFERENCES cleaning_runs(id) ON DELETE CASCADE,
	position           INTEGER NOT NULL,
	record_id          TEXT NOT NULL,
	job_id             TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	content_type       TEXT NOT NULL DEFAULT 'html',
	confidence_score   REAL NOT NULL DEFAULT 0,
	data_quality_score REAL NOT NULL DEFAULT 0,
	valid              INTEGER NOT NULL DEFAULT 0,
	corrected          INTEGER NOT NULL DEFAULT 0,
	content            TEXT NOT NULL,
	validation_errors  TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_cleaning_runs_job_id ON cleaning_runs(job_id);
CREATE INDEX IF NOT EXISTS idx_cleaning_runs_created_at ON cleaning_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_cleaned_records_record_id ON cleaned_records(record_id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run. A missing ID or timestamp is filled in.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.CleaningRun) error {
	prepareRun(run, uuid.NewString)
	metrics, report, err := encodeRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cleaning_runs (id, job_id, source, total_records, overall_score, metrics, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			job_id = excluded.job_id,
			source = excluded.source,
			total_records = excluded.total_records,
			overall_score = excluded.overall_score,
			metrics = excluded.metrics,
			report = excluded.report`,
		run.ID, run.JobID, run.Source, run.Metrics.TotalRecords, run.Metrics.OverallScore,
		string(metrics), string(report), run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

// GetRun loads a run by ID. A missing run returns ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.CleaningRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, source, metrics, report, created_at FROM cleaning_runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CleaningRun, error) {
	query := `SELECT id, job_id, source, metrics, report, created_at FROM cleaning_runs WHERE 1=1`
	var args []any

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.CleaningRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveRecords stores the cleaned records of a run in order, replacing any
// previously saved for the same positions.
func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO cleaned_records (`+joinColumns(recordColumns)+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range records {
		enc, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		_, err = stmt.ExecContext(ctx,
			runID, i, r.ID, r.JobID, r.URL, string(r.ContentType),
			r.ConfidenceScore, r.QualityScore, r.Valid, r.Corrected,
			string(enc.content), string(enc.errors),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert record %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit records")
	}
	return int64(len(records)), nil
}

// ListRecords returns the saved records of a run in their original order.
func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, job_id, url, content_type, confidence_score, data_quality_score,
		        valid, corrected, content, validation_errors
		 FROM cleaned_records WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records of %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Record{}
	for rows.Next() {
		var (
			r               model.Record
			ctype           string
			content, errJSON string
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.URL, &ctype, &r.ConfidenceScore, &r.QualityScore,
			&r.Valid, &r.Corrected, &content, &errJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		r.ContentType = model.ContentType(ctype)
		if err := decodeRecord(&r, []byte(content), []byte(errJSON)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.CleaningRun, error) {
	var (
		r               model.CleaningRun
		metrics, report string
		createdAt       time.Time
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.Source, &metrics, &report, &createdAt); err != nil {
		return nil, err
	}
	r.CreatedAt = createdAt.UTC()
	if err := decodeRun(&r, []byte(metrics), []byte(report)); err != nil {
		return nil, err
	}
	return &r, nil
}
