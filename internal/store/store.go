// Package store persists cleaning runs and their cleaned records.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scrape-cleaner/internal/config"
	"github.com/sells-group/scrape-cleaner/internal/model"
)

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "scrape-cleaner.db"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	JobID  string    `json:"job_id,omitempty"`
	Since  time.Time `json:"since,omitempty"` // created at or after
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for cleaning runs.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.CleaningRun) error
	GetRun(ctx context.Context, runID string) (*model.CleaningRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.CleaningRun, error)

	// Records
	SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error)
	ListRecords(ctx context.Context, runID string) ([]model.Record, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		return NewSQLite(dsn)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires store.database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns})
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

// prepareRun fills in the ID and timestamp of a run before insert.
func prepareRun(run *model.CleaningRun, newID func() string) {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.CreatedAt = run.CreatedAt.UTC()
}
