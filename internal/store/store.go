// Package store persists scrape runs, the records they collected and the
// failures they logged.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sisplade-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for scrape runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, scope model.RunScope) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Records
	SaveRecord(ctx context.Context, runID string, rec model.MunicipalityRecord) error
	LoadRecords(ctx context.Context, runID string) ([]model.MunicipalityRecord, error)

	// Failures
	SaveFailure(ctx context.Context, f model.Failure) error
	ListFailures(ctx context.Context, runID string) ([]model.Failure, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by driver, or nil when persistence is
// disabled.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		if dsn == "" {
			dsn = "sisplade.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", driver)
	}
}

// nullableText maps an absent cell to nil so it is stored as NULL.
func nullableText(c model.Cell) *string {
	if c.IsAbsent() {
		return nil
	}
	s := c.Text
	return &s
}

func cellFromNullable(s *string) model.Cell {
	if s == nil {
		return model.Absent()
	}
	return model.Value(*s)
}

func nullableYear(year int) *int {
	if year == 0 {
		return nil
	}
	return &year
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
