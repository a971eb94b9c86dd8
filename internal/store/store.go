// Package store persists scoring runs and their result columns in
// SQLite or PostgreSQL.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-access/internal/table"
)

// RunStatus tracks a scoring run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of a scoring method.
type Run struct {
	ID        string         `json:"id"`
	Method    string         `json:"method"`
	Metric    string         `json:"metric"`
	Params    map[string]any `json:"params,omitempty"`
	Status    RunStatus      `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Method string    `json:"method,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for scoring runs.
type Store interface {
	CreateRun(ctx context.Context, method, metric string, params map[string]any) (*Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	FailRun(ctx context.Context, runID string, cause string) error
	// CompleteRun stores the result columns and marks the run complete.
	CompleteRun(ctx context.Context, runID string, results map[string]table.Series) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	Scores(ctx context.Context, runID string) (map[string]table.Series, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens a store for the configured driver.
func New(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
