package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/config"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "runs.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []*Run{
		{ConfigName: "mainnet", Total: 3, Passed: 3, CreatedAt: base},
		{ConfigName: "mainnet", Total: 3, Passed: 2, Failed: 1, CreatedAt: base.Add(time.Minute)},
		{ConfigName: "sepolia", Total: 1, Warnings: 1, Summary: []byte(`{"total":1}`), CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		require.NoError(t, store.CreateRun(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	t.Run("CreateRun derives outcome", func(t *testing.T) {
		assert.Equal(t, OutcomePassed, runs[0].Outcome)
		assert.Equal(t, OutcomeFailed, runs[1].Outcome)
		assert.Equal(t, OutcomePassed, runs[2].Outcome)
	})

	t.Run("GetRun", func(t *testing.T) {
		got, err := store.GetRun(ctx, runs[2].ID)
		require.NoError(t, err)
		assert.Equal(t, "sepolia", got.ConfigName)
		assert.Equal(t, 1, got.Warnings)
		assert.JSONEq(t, `{"total":1}`, string(got.Summary))
		assert.True(t, got.CreatedAt.Equal(runs[2].CreatedAt))
	})

	t.Run("GetRun not found", func(t *testing.T) {
		_, err := store.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns newest first with cursor", func(t *testing.T) {
		page, err := store.ListRuns(ctx, RunFilter{}, PaginationParams{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, runs[2].ID, page.Data[0].ID)
		assert.Equal(t, runs[1].ID, page.Data[1].ID)
		assert.Nil(t, page.Data[0].Summary)

		next, err := store.ListRuns(ctx, RunFilter{}, PaginationParams{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, next.Data, 1)
		assert.False(t, next.HasMore)
		assert.Empty(t, next.NextCursor)
		assert.Equal(t, runs[0].ID, next.Data[0].ID)
	})

	t.Run("ListRuns filters", func(t *testing.T) {
		tests := []struct {
			name   string
			filter RunFilter
			want   int
		}{
			{"by config", RunFilter{ConfigName: "mainnet"}, 2},
			{"by outcome", RunFilter{Outcome: OutcomeFailed}, 1},
			{"both", RunFilter{ConfigName: "sepolia", Outcome: OutcomeFailed}, 0},
			{"none", RunFilter{}, 3},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				page, err := store.ListRuns(ctx, tt.filter, PaginationParams{})
				require.NoError(t, err)
				assert.Len(t, page.Data, tt.want)
			})
		}
	})

	t.Run("ListRuns invalid cursor", func(t *testing.T) {
		_, err := store.ListRuns(ctx, RunFilter{}, PaginationParams{Cursor: "not-a-uuid"})
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("DeleteRun", func(t *testing.T) {
		require.NoError(t, store.DeleteRun(ctx, runs[0].ID))
		_, err := store.GetRun(ctx, runs[0].ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteRun(ctx, runs[0].ID), ErrNotFound)
	})
}

func TestRunQuery(t *testing.T) {
	query, args := runQuery(
		RunFilter{ConfigName: "mainnet", Outcome: OutcomeFailed},
		PaginationParams{Limit: 5, Cursor: "6f1c0e7a-2b1d-4f7e-9a51-3c8d2e4b5a10"},
		func(n int) string { return "$" + string(rune('0'+n)) },
	)
	assert.Contains(t, query, "config_name = $1 AND outcome = $2 AND (created_at, id) < (SELECT created_at, id FROM runs WHERE id = $3)")
	assert.Contains(t, query, "LIMIT $4")
	assert.Equal(t, []any{"mainnet", OutcomeFailed, "6f1c0e7a-2b1d-4f7e-9a51-3c8d2e4b5a10", 6}, args)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.StorageConfig{Type: "memory"}, nil)
	assert.EqualError(t, err, "unknown storage type: memory")
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := newTestSQLite(t)
	assert.NoError(t, store.Ping(context.Background()))

	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(context.Background()))
}
