// Package checkin decides whether a scanned payload becomes a recorded
// check-in. Each attempt runs a linear pipeline (parse, token match,
// freshness, role, debounce, record) terminating in success or one named
// rejection.
package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/metrics"
	"github.com/hurxxxx/trailtag-sub001/internal/model"
	"github.com/hurxxxx/trailtag-sub001/internal/qrtoken"
)

var (
	ErrBadFormat    = errors.New("malformed check-in payload")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenExpired = errors.New("token expired by age")
	ErrNotStudent   = errors.New("only students may check in")
	ErrDuplicate    = errors.New("duplicate check-in")
)

type Store interface {
	GetProgram(ctx context.Context, programID int64) (model.Program, error)
	CreateCheckIn(ctx context.Context, checkIn model.CheckIn) error
	HasRecentCheckIn(ctx context.Context, studentID string, programID int64, cutoff time.Time) (bool, error)
}

// TokenResolver is the lifecycle manager's lookup surface.
type TokenResolver interface {
	Lookup(ctx context.Context, programID int64, issuedAtMs int64) (model.QRToken, error)
}

// Result carries the recorded check-in plus denormalized program fields for
// display.
type Result struct {
	CheckIn            model.CheckIn
	ProgramName        string
	ProgramDescription string
}

type Validator struct {
	store    Store
	tokens   TokenResolver
	codec    qrtoken.Codec
	guard    Guard
	maxAge   time.Duration
	debounce time.Duration
	now      func() time.Time
}

// NewValidator wires the pipeline. guard may be nil, in which case the
// debounce relies on persisted history alone and the narrow concurrent race
// is accepted.
func NewValidator(store Store, tokens TokenResolver, codec qrtoken.Codec, guard Guard, maxAge, debounce time.Duration) *Validator {
	return &Validator{
		store:    store,
		tokens:   tokens,
		codec:    codec,
		guard:    guard,
		maxAge:   maxAge,
		debounce: debounce,
		now:      time.Now,
	}
}

func (v *Validator) CheckIn(ctx context.Context, principal model.Principal, payload, location string) (Result, error) {
	result, err := v.run(ctx, principal, payload, location)
	metrics.CheckInAttempts.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

func (v *Validator) run(ctx context.Context, principal model.Principal, payload, location string) (Result, error) {
	programID, issuedAtMs, err := v.codec.Decode(payload)
	if err != nil {
		return Result{}, ErrBadFormat
	}

	token, err := v.tokens.Lookup(ctx, programID, issuedAtMs)
	if err != nil {
		if trace.IsNotFound(err) {
			return Result{}, ErrInvalidToken
		}
		return Result{}, trace.Wrap(err)
	}

	// Independent of the row match: a payload older than the cap is dead
	// even if nobody regenerated the token.
	now := v.now().UTC()
	issuedAt := time.UnixMilli(token.IssuedAtMs).UTC()
	if now.Sub(issuedAt) > v.maxAge {
		return Result{}, ErrTokenExpired
	}

	if principal.Role != model.RoleStudent {
		return Result{}, ErrNotStudent
	}

	if v.guard != nil {
		acquired, err := v.guard.Acquire(ctx, principal.ID, programID)
		if err != nil {
			return Result{}, trace.Wrap(err)
		}
		if !acquired {
			return Result{}, ErrDuplicate
		}
	}
	recent, err := v.store.HasRecentCheckIn(ctx, principal.ID, programID, now.Add(-v.debounce))
	if err != nil {
		v.releaseGuard(ctx, principal.ID, programID)
		return Result{}, trace.Wrap(err)
	}
	if recent {
		// The window is derived from recorded history alone; a rejected
		// attempt must not leave the guard armed past it.
		v.releaseGuard(ctx, principal.ID, programID)
		return Result{}, ErrDuplicate
	}

	checkIn := model.CheckIn{
		ID:          uuid.NewString(),
		StudentID:   principal.ID,
		ProgramID:   programID,
		TokenID:     token.ID,
		CheckedInAt: now,
		Location:    location,
	}
	if err := v.store.CreateCheckIn(ctx, checkIn); err != nil {
		v.releaseGuard(ctx, principal.ID, programID)
		return Result{}, trace.Wrap(err)
	}

	program, err := v.store.GetProgram(ctx, programID)
	if err != nil {
		// The row is recorded; display fields are best effort.
		return Result{CheckIn: checkIn}, nil
	}
	return Result{
		CheckIn:            checkIn,
		ProgramName:        program.Name,
		ProgramDescription: program.Description,
	}, nil
}

func (v *Validator) releaseGuard(ctx context.Context, studentID string, programID int64) {
	if v.guard == nil {
		return
	}
	_ = v.guard.Release(ctx, studentID, programID)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "recorded"
	case errors.Is(err, ErrBadFormat):
		return "bad_format"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrNotStudent):
		return "not_student"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	default:
		return "error"
	}
}
