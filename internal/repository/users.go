package repository

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, locale, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Username, user.PasswordHash, string(user.Role), user.Locale, user.Timezone, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return trace.AlreadyExists("username %q is taken", user.Username)
	}
	return trace.Wrap(err)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, locale, timezone, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)
	err := scanUser(row, &user)
	if isNoRows(err) {
		return model.User{}, trace.NotFound("user %q not found", username)
	}
	return user, trace.Wrap(err)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, locale, timezone, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := scanUser(row, &user)
	if isNoRows(err) {
		return model.User{}, trace.NotFound("user %s not found", userID)
	}
	return user, trace.Wrap(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, user *model.User) error {
	var role string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&role,
		&user.Locale,
		&user.Timezone,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	user.Role = model.Role(role)
	return err
}
