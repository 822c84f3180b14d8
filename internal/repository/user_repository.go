package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/routine-tracker/internal/model"
)

// UserRepo mirrors the identity provider's users into the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,name,image,created_at,updated_at"

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u           model.User
		name, image sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	if image.Valid {
		u.Image = &image.String
	}
	return u, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// Upsert makes sure a row exists for email.  An existing user gets its name
// refreshed from the token; its image is only filled in when it has none,
// so an avatar chosen in the app is never overwritten by the provider's.
func (r *UserRepo) Upsert(ctx context.Context, email string, name, image *string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := r.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_, err = r.DB.ExecContext(ctx,
			"INSERT INTO users (email, name, image) VALUES (?,?,?)",
			email, name, image)
		if err != nil && !isDuplicate(err) {
			return model.User{}, err
		}
		// Either our insert or a concurrent one created the row.
		return r.GetByEmail(ctx, email)
	}
	if err != nil {
		return model.User{}, err
	}

	nameChanged := !sameString(u.Name, name)
	fillImage := u.Image == nil && image != nil && *image != ""
	if !nameChanged && !fillImage {
		return u, nil
	}
	if nameChanged {
		u.Name = name
	}
	if fillImage {
		u.Image = image
	}
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, image=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		u.Name, u.Image, u.ID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// SetImage replaces the avatar URL; nil clears it.
func (r *UserRepo) SetImage(ctx context.Context, id uint64, image *string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET image=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", image, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
