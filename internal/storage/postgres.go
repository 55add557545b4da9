package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		config_name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		total INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		summary JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_config ON runs(config_name);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// CreateRun stores a run, assigning its ID, outcome and timestamp when unset
func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	prepareRun(run)
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	var summary any
	if len(run.Summary) > 0 {
		summary = string(run.Summary)
	}

	query := `
		INSERT INTO runs (id, config_name, outcome, total, passed, failed, warnings, skipped, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.ConfigName, run.Outcome,
		run.Total, run.Passed, run.Failed, run.Warnings, run.Skipped,
		summary, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a run including its summary
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if !validCursor(id) {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, config_name, outcome, total, passed, failed, warnings, skipped, summary, created_at
		FROM runs
		WHERE id = $1
	`
	var run Run
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.ConfigName, &run.Outcome,
		&run.Total, &run.Passed, &run.Failed, &run.Warnings, &run.Skipped,
		&summary, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if summary.Valid {
		run.Summary = []byte(summary.String)
	}
	return &run, nil
}

// ListRuns lists runs newest first. Summaries are not loaded.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter, pagination PaginationParams) (*PaginatedResult[Run], error) {
	if !validCursor(pagination.Cursor) {
		return nil, ErrInvalidCursor
	}
	query, args := runQuery(filter, pagination, func(n int) string { return fmt.Sprintf("$%d", n) })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.ConfigName, &run.Outcome, &run.Total, &run.Passed, &run.Failed, &run.Warnings, &run.Skipped, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(runs, pagination.Limit), nil
}

// DeleteRun removes a run
func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	if !validCursor(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
