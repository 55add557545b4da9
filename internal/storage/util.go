package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const defaultListLimit = 20

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// prepareRun fills the generated fields before insert
func prepareRun(run *Run) {
	if run.ID == "" {
		run.ID = generateID()
	}
	if run.Outcome == "" {
		run.Outcome = OutcomePassed
		if run.Failed > 0 {
			run.Outcome = OutcomeFailed
		}
	}
}

// validCursor reports whether a cursor is a run ID
func validCursor(cursor string) bool {
	if cursor == "" {
		return true
	}
	_, err := uuid.Parse(cursor)
	return err == nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// runQuery builds the list query. placeholder renders the n-th bind parameter.
func runQuery(filter RunFilter, pagination PaginationParams, placeholder func(n int) string) (string, []any) {
	var where []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.ConfigName != "" {
		where = append(where, "config_name = "+next(filter.ConfigName))
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = "+next(filter.Outcome))
	}
	if pagination.Cursor != "" {
		where = append(where, fmt.Sprintf("(created_at, id) < (SELECT created_at, id FROM runs WHERE id = %s)", next(pagination.Cursor)))
	}

	query := `SELECT id, config_name, outcome, total, passed, failed, warnings, skipped, created_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + next(normalizeLimit(pagination.Limit)+1)
	return query, args
}

// paginate trims the extra row fetched to detect another page
func paginate(runs []Run, limit int) *PaginatedResult[Run] {
	limit = normalizeLimit(limit)
	res := &PaginatedResult[Run]{Data: runs}
	if len(runs) > limit {
		res.Data = runs[:limit]
		res.HasMore = true
	}
	if res.HasMore {
		res.NextCursor = res.Data[len(res.Data)-1].ID
	}
	return res
}
