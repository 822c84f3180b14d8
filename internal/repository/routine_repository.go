package repository

import (
	"context"      // context carries request deadlines into every query
	"database/sql" // sql provides generic database operations and drivers
	"errors"
	"strings"

	"github.com/iliyamo/routine-tracker/internal/model"
)

// RoutineRepo encapsulates all database queries related to routines.  Every
// method that touches an existing routine takes the owning user's id and
// filters on it, so rows of other users are never read or written.
type RoutineRepo struct {
	db *sql.DB // db is the underlying database connection pool
}

// NewRoutineRepo constructs a RoutineRepo with the provided DB handle.
func NewRoutineRepo(db *sql.DB) *RoutineRepo {
	return &RoutineRepo{db: db}
}

const routineColumns = "id, user_id, title, color, created_at, updated_at"

func scanRoutine(row interface{ Scan(...any) error }, r *model.Routine) error {
	return row.Scan(&r.ID, &r.UserID, &r.Title, &r.Color, &r.CreatedAt, &r.UpdatedAt)
}

// Create inserts a new routine.  On success the routine's ID and timestamp
// fields are populated from the stored row.
func (r *RoutineRepo) Create(ctx context.Context, rt *model.Routine) error {
	const qInsert = "INSERT INTO routines (user_id, title, color) VALUES (?, ?, ?)"
	res, err := r.db.ExecContext(ctx, qInsert, rt.UserID, rt.Title, rt.Color)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)

	// Follow-up SELECT to populate default timestamp fields.
	const qSelect = "SELECT " + routineColumns + " FROM routines WHERE id = ?"
	return scanRoutine(r.db.QueryRowContext(ctx, qSelect, rt.ID), rt)
}

// FindRoutineOwnedBy fetches a routine by id but only if it belongs to the
// specified user.  If the routine doesn't exist or is owned by someone else,
// ErrNotFound is returned.
func (r *RoutineRepo) FindRoutineOwnedBy(ctx context.Context, id, userID uint64) (*model.Routine, error) {
	const q = "SELECT " + routineColumns + " FROM routines WHERE id = ? AND user_id = ?"
	var rt model.Routine
	if err := scanRoutine(r.db.QueryRowContext(ctx, q, id, userID), &rt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// ListByUser returns all routines of a user ordered by id.
func (r *RoutineRepo) ListByUser(ctx context.Context, userID uint64) ([]*model.Routine, error) {
	const q = "SELECT " + routineColumns + " FROM routines WHERE user_id = ? ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Routine
	for rows.Next() {
		rt := new(model.Routine)
		if err := scanRoutine(rows, rt); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies the non-nil fields of patch to a routine owned by userID.
// It returns ErrNotFound when no row matches.
func (r *RoutineRepo) Update(ctx context.Context, id, userID uint64, patch model.RoutinePatch) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, userID)

	q := "UPDATE routines SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 affected rows for a no-op update, so confirm the
		// row is really missing before calling it not found.
		if _, err := r.FindRoutineOwnedBy(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByIDAndUser removes a routine and all of its completions provided it
// belongs to the specified user.  The deletion occurs within a transaction
// so a failure leaves both tables untouched.
func (r *RoutineRepo) DeleteByIDAndUser(ctx context.Context, id, userID uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var owner uint64
	if err = tx.QueryRowContext(ctx, `SELECT user_id FROM routines WHERE id = ?`, id).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != userID {
		return ErrNotFound
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM completions WHERE routine_id = ?`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id); err != nil {
		return err
	}
	return nil
}
