// Package session issues and validates bearer session credentials. A
// credential is a signed JWT carrying the principal's claims, but it is only
// honored while a matching session row exists: revoking the row invalidates
// the credential immediately, before its signature ever expires.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/auth"
	"github.com/hurxxxx/trailtag-sub001/internal/crypto"
	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

var (
	ErrUnauthenticated = errors.New("no session token supplied")
	ErrInvalidSession  = errors.New("invalid or expired session")
)

type Store interface {
	CreateSession(ctx context.Context, session model.Session) error
	GetSession(ctx context.Context, tokenHash string) (model.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Manager struct {
	store  Store
	secret string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store Store, secret, issuer string, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create issues a signed credential for the user and persists the backing
// session row, keyed by the token's hash.
func (m *Manager) Create(ctx context.Context, user model.User) (string, time.Time, error) {
	token, err := auth.NewSessionToken(m.secret, m.issuer, m.ttl, auth.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
	if err != nil {
		return "", time.Time{}, trace.Wrap(err)
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	if err := m.store.CreateSession(ctx, model.Session{
		TokenHash: crypto.HashToken(token),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", time.Time{}, trace.Wrap(err)
	}
	return token, expiresAt, nil
}

// Validate resolves the Principal behind a bearer token. The session row is
// consulted before the signature, so a revoked session fails even while the
// credential still verifies.
func (m *Manager) Validate(ctx context.Context, token string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, ErrUnauthenticated
	}
	row, err := m.store.GetSession(ctx, crypto.HashToken(token))
	if err != nil {
		if trace.IsNotFound(err) {
			return model.Principal{}, ErrInvalidSession
		}
		return model.Principal{}, trace.Wrap(err)
	}
	if !row.ExpiresAt.After(m.now().UTC()) {
		return model.Principal{}, ErrInvalidSession
	}
	claims, err := auth.ParseToken(m.secret, token)
	if err != nil {
		return model.Principal{}, ErrInvalidSession
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return model.Principal{}, ErrInvalidSession
	}
	return model.Principal{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     role,
	}, nil
}

// Revoke deletes the session row. Revoking an unknown token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return trace.Wrap(m.store.DeleteSession(ctx, crypto.HashToken(token)))
}

func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := m.store.DeleteExpiredSessions(ctx, m.now().UTC())
	return deleted, trace.Wrap(err)
}
