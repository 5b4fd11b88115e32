// Package qrtoken owns the lifecycle of scannable check-in tokens and the
// one-active-token-per-program invariant.
package qrtoken

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

type Store interface {
	GetProgram(ctx context.Context, programID int64) (model.Program, error)
	CreateQRToken(ctx context.Context, token model.QRToken) error
	GetQRToken(ctx context.Context, tokenID string) (model.QRToken, error)
	GetActiveQRTokenForProgram(ctx context.Context, programID int64) (model.QRToken, error)
	RegenerateQRToken(ctx context.Context, tokenID string, issuedAtMs int64, payload string) (model.QRToken, error)
	DeactivateQRToken(ctx context.Context, tokenID string) error
	LookupActiveQRToken(ctx context.Context, programID int64, issuedAtMs int64) (model.QRToken, error)
}

type Manager struct {
	store Store
	codec Codec
	now   func() time.Time
}

func NewManager(store Store, codec Codec) *Manager {
	return &Manager{store: store, codec: codec, now: time.Now}
}

func (m *Manager) Codec() Codec {
	return m.codec
}

// Create issues the first token for a program. The partial unique index on
// (program_id) WHERE active backs the pre-check, so two concurrent creates
// cannot both succeed.
func (m *Manager) Create(ctx context.Context, programID int64) (model.QRToken, error) {
	program, err := m.store.GetProgram(ctx, programID)
	if err != nil {
		return model.QRToken{}, trace.Wrap(err)
	}
	if !program.Active {
		return model.QRToken{}, trace.NotFound("program %d is not active", programID)
	}
	if _, err := m.store.GetActiveQRTokenForProgram(ctx, programID); err == nil {
		return model.QRToken{}, trace.AlreadyExists("program %d already has an active token", programID)
	} else if !trace.IsNotFound(err) {
		return model.QRToken{}, trace.Wrap(err)
	}

	now := m.now().UTC()
	issuedAtMs := now.UnixMilli()
	token := model.QRToken{
		ID:         uuid.NewString(),
		ProgramID:  programID,
		Payload:    m.codec.Encode(programID, issuedAtMs),
		Version:    1,
		IssuedAtMs: issuedAtMs,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.CreateQRToken(ctx, token); err != nil {
		return model.QRToken{}, trace.Wrap(err)
	}
	return token, nil
}

// Regenerate refreshes the issuance timestamp, bumps the version and
// recomputes the payload in one atomic update. Every previously distributed
// code for the program stops resolving, since Lookup matches on the exact
// (program, timestamp) pair.
func (m *Manager) Regenerate(ctx context.Context, tokenID string) (model.QRToken, error) {
	token, err := m.store.GetQRToken(ctx, tokenID)
	if err != nil {
		return model.QRToken{}, trace.Wrap(err)
	}
	issuedAtMs := m.now().UTC().UnixMilli()
	payload := m.codec.Encode(token.ProgramID, issuedAtMs)
	updated, err := m.store.RegenerateQRToken(ctx, tokenID, issuedAtMs, payload)
	if err != nil {
		return model.QRToken{}, trace.Wrap(err)
	}
	return updated, nil
}

// Deactivate marks the token inactive. Rows are never deleted because
// check-in history keeps referencing them.
func (m *Manager) Deactivate(ctx context.Context, tokenID string) error {
	return trace.Wrap(m.store.DeactivateQRToken(ctx, tokenID))
}

// Lookup resolves a scanned (program, timestamp) pair to its token. The
// token and its program must both still be active and the match is exact.
func (m *Manager) Lookup(ctx context.Context, programID int64, issuedAtMs int64) (model.QRToken, error) {
	token, err := m.store.LookupActiveQRToken(ctx, programID, issuedAtMs)
	return token, trace.Wrap(err)
}

// CurrentForProgram returns the active token so collaborators can render it.
func (m *Manager) CurrentForProgram(ctx context.Context, programID int64) (model.QRToken, error) {
	token, err := m.store.GetActiveQRTokenForProgram(ctx, programID)
	return token, trace.Wrap(err)
}
