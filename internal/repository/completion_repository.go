package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/routine-tracker/internal/calendar"
	"github.com/iliyamo/routine-tracker/internal/model"
)

// CompletionRepo persists completion rows.  Days are stored as ISO keys so
// that lexical order equals chronological order and range predicates are
// plain string comparisons.
type CompletionRepo struct {
	db *sql.DB
}

// NewCompletionRepo returns a CompletionRepo bound to the given database.
func NewCompletionRepo(db *sql.DB) *CompletionRepo { return &CompletionRepo{db: db} }

const completionColumns = "id, routine_id, day, completed, created_at"

func scanCompletion(row interface{ Scan(...any) error }) (model.Completion, error) {
	var (
		c   model.Completion
		day string
	)
	if err := row.Scan(&c.ID, &c.RoutineID, &day, &c.Completed, &c.CreatedAt); err != nil {
		return model.Completion{}, err
	}
	d, err := calendar.ParseISODate(day)
	if err != nil {
		return model.Completion{}, fmt.Errorf("completion %d: %w", c.ID, err)
	}
	c.Day = d
	return c, nil
}

// FindCompletion returns the completion of a routine on day, or ErrNotFound.
func (r *CompletionRepo) FindCompletion(ctx context.Context, routineID uint64, day calendar.Day) (*model.Completion, error) {
	const q = "SELECT " + completionColumns + " FROM completions WHERE routine_id = ? AND day = ?"
	c, err := scanCompletion(r.db.QueryRowContext(ctx, q, routineID, day.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCompletion inserts a completion for (routineID, day).  The unique
// key on those columns rejects a second row; that case is reported as
// ErrConflict rather than a raw driver error.
func (r *CompletionRepo) CreateCompletion(ctx context.Context, routineID uint64, day calendar.Day) (*model.Completion, error) {
	const q = "INSERT INTO completions (routine_id, day, completed) VALUES (?, ?, 1)"
	res, err := r.db.ExecContext(ctx, q, routineID, day.String())
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("completion %d/%s: %w", routineID, day, ErrConflict)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	c := &model.Completion{ID: uint64(id), RoutineID: routineID, Day: day, Completed: true}
	if err := r.db.QueryRowContext(ctx, "SELECT created_at FROM completions WHERE id = ?", c.ID).Scan(&c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCompletion removes a completion by id.  It returns ErrNotFound when
// the row is already gone, which happens when a concurrent toggle won.
func (r *CompletionRepo) DeleteCompletion(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM completions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompletions returns the completions of one routine whose day lies in
// [from, to), ascending by day.
func (r *CompletionRepo) ListCompletions(ctx context.Context, routineID uint64, from, to calendar.Day) ([]model.Completion, error) {
	const q = "SELECT " + completionColumns + ` FROM completions
	           WHERE routine_id = ? AND day >= ? AND day < ? ORDER BY day`
	rows, err := r.db.QueryContext(ctx, q, routineID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCompletionsFor is the batched variant of ListCompletions used by the
// dashboard: one query for many routines, grouped by routine id.  Routines
// without completions in the window have no entry in the map.
func (r *CompletionRepo) ListCompletionsFor(ctx context.Context, routineIDs []uint64, from, to calendar.Day) (map[uint64][]model.Completion, error) {
	out := make(map[uint64][]model.Completion, len(routineIDs))
	if len(routineIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(routineIDs)+2)
	for _, id := range routineIDs {
		args = append(args, id)
	}
	args = append(args, from.String(), to.String())

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(routineIDs)), ",")
	q := "SELECT " + completionColumns + " FROM completions WHERE routine_id IN (" + placeholders +
		") AND day >= ? AND day < ? ORDER BY routine_id, day"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out[c.RoutineID] = append(out[c.RoutineID], c)
	}
	return out, rows.Err()
}
