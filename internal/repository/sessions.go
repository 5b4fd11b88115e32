package repository

import (
	"context"
	"time"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

func (s *Store) CreateSession(ctx context.Context, session model.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt)
	if isUniqueViolation(err) {
		return trace.AlreadyExists("session already exists")
	}
	return trace.Wrap(err)
}

func (s *Store) GetSession(ctx context.Context, tokenHash string) (model.Session, error) {
	var session model.Session
	row := s.pool.QueryRow(ctx, `
		SELECT token_hash, user_id, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.TokenHash, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if isNoRows(err) {
		return model.Session{}, trace.NotFound("session not found")
	}
	return session, trace.Wrap(err)
}

// DeleteSession is a no-op when the row is already gone.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return trace.Wrap(err)
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return tag.RowsAffected(), nil
}
