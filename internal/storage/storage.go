package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/integrity-verifier/internal/config"
)

// RunStore persists verification runs
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter, pagination PaginationParams) (*PaginatedResult[Run], error)
	DeleteRun(ctx context.Context, id string) error
}

// Store combines the run store with lifecycle methods.
// Callers define their own minimal interfaces based on their actual usage.
type Store interface {
	RunStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Run outcomes
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

// Run is one stored verification run. Summary holds the full JSON summary.
type Run struct {
	ID         string
	ConfigName string
	Outcome    string
	Total      int
	Passed     int
	Failed     int
	Warnings   int
	Skipped    int
	Summary    []byte
	CreatedAt  time.Time
}

// RunFilter contains filter options for listing runs
type RunFilter struct {
	ConfigName string
	Outcome    string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
