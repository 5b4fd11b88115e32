package repository

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

const qrTokenColumns = `id, program_id, payload, version, issued_at_ms, active, created_at, updated_at`

func (s *Store) CreateQRToken(ctx context.Context, token model.QRToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO qr_tokens (id, program_id, payload, version, issued_at_ms, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, token.ID, token.ProgramID, token.Payload, token.Version, token.IssuedAtMs, token.Active, token.CreatedAt, token.UpdatedAt)
	if isUniqueViolation(err) {
		return trace.AlreadyExists("program %d already has an active token", token.ProgramID)
	}
	return trace.Wrap(err)
}

func (s *Store) GetQRToken(ctx context.Context, tokenID string) (model.QRToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+qrTokenColumns+` FROM qr_tokens WHERE id = $1`, tokenID)
	token, err := scanQRToken(row)
	if isNoRows(err) {
		return model.QRToken{}, trace.NotFound("token %s not found", tokenID)
	}
	return token, trace.Wrap(err)
}

func (s *Store) GetActiveQRTokenForProgram(ctx context.Context, programID int64) (model.QRToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+qrTokenColumns+`
		FROM qr_tokens
		WHERE program_id = $1 AND active
	`, programID)
	token, err := scanQRToken(row)
	if isNoRows(err) {
		return model.QRToken{}, trace.NotFound("program %d has no active token", programID)
	}
	return token, trace.Wrap(err)
}

// RegenerateQRToken bumps version, issuance timestamp and payload in one
// statement so no reader can observe a partially applied regenerate.
func (s *Store) RegenerateQRToken(ctx context.Context, tokenID string, issuedAtMs int64, payload string) (model.QRToken, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE qr_tokens
		SET version = version + 1, issued_at_ms = $2, payload = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+qrTokenColumns+`
	`, tokenID, issuedAtMs, payload)
	token, err := scanQRToken(row)
	if isNoRows(err) {
		return model.QRToken{}, trace.NotFound("token %s not found", tokenID)
	}
	return token, trace.Wrap(err)
}

func (s *Store) DeactivateQRToken(ctx context.Context, tokenID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE qr_tokens SET active = false, updated_at = now() WHERE id = $1
	`, tokenID)
	if err != nil {
		return trace.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return trace.NotFound("token %s not found", tokenID)
	}
	return nil
}

// LookupActiveQRToken resolves a scanned payload: exact (program, issuance)
// pair, token still active, program still active.
func (s *Store) LookupActiveQRToken(ctx context.Context, programID int64, issuedAtMs int64) (model.QRToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT t.id, t.program_id, t.payload, t.version, t.issued_at_ms, t.active, t.created_at, t.updated_at
		FROM qr_tokens t
		JOIN programs p ON p.id = t.program_id
		WHERE t.program_id = $1 AND t.issued_at_ms = $2 AND t.active AND p.active
	`, programID, issuedAtMs)
	token, err := scanQRToken(row)
	if isNoRows(err) {
		return model.QRToken{}, trace.NotFound("no matching active token")
	}
	return token, trace.Wrap(err)
}

func scanQRToken(row rowScanner) (model.QRToken, error) {
	var token model.QRToken
	err := row.Scan(
		&token.ID,
		&token.ProgramID,
		&token.Payload,
		&token.Version,
		&token.IssuedAtMs,
		&token.Active,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	return token, err
}
