package qrtoken

import (
	"context"
	"testing"
	"time"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

// fakeStore mirrors the repository semantics, including the partial unique
// index that allows only one active token per program.
type fakeStore struct {
	programs map[int64]model.Program
	tokens   map[string]model.QRToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		programs: make(map[int64]model.Program),
		tokens:   make(map[string]model.QRToken),
	}
}

func (f *fakeStore) GetProgram(_ context.Context, programID int64) (model.Program, error) {
	program, ok := f.programs[programID]
	if !ok {
		return model.Program{}, trace.NotFound("program %d not found", programID)
	}
	return program, nil
}

func (f *fakeStore) CreateQRToken(_ context.Context, token model.QRToken) error {
	for _, existing := range f.tokens {
		if existing.ProgramID == token.ProgramID && existing.Active && token.Active {
			return trace.AlreadyExists("program %d already has an active token", token.ProgramID)
		}
	}
	f.tokens[token.ID] = token
	return nil
}

func (f *fakeStore) GetQRToken(_ context.Context, tokenID string) (model.QRToken, error) {
	token, ok := f.tokens[tokenID]
	if !ok {
		return model.QRToken{}, trace.NotFound("token %s not found", tokenID)
	}
	return token, nil
}

func (f *fakeStore) GetActiveQRTokenForProgram(_ context.Context, programID int64) (model.QRToken, error) {
	for _, token := range f.tokens {
		if token.ProgramID == programID && token.Active {
			return token, nil
		}
	}
	return model.QRToken{}, trace.NotFound("program %d has no active token", programID)
}

func (f *fakeStore) RegenerateQRToken(_ context.Context, tokenID string, issuedAtMs int64, payload string) (model.QRToken, error) {
	token, ok := f.tokens[tokenID]
	if !ok {
		return model.QRToken{}, trace.NotFound("token %s not found", tokenID)
	}
	token.Version++
	token.IssuedAtMs = issuedAtMs
	token.Payload = payload
	token.UpdatedAt = time.Now().UTC()
	f.tokens[tokenID] = token
	return token, nil
}

func (f *fakeStore) DeactivateQRToken(_ context.Context, tokenID string) error {
	token, ok := f.tokens[tokenID]
	if !ok {
		return trace.NotFound("token %s not found", tokenID)
	}
	token.Active = false
	f.tokens[tokenID] = token
	return nil
}

func (f *fakeStore) LookupActiveQRToken(_ context.Context, programID int64, issuedAtMs int64) (model.QRToken, error) {
	program, ok := f.programs[programID]
	if !ok || !program.Active {
		return model.QRToken{}, trace.NotFound("no matching active token")
	}
	for _, token := range f.tokens {
		if token.ProgramID == programID && token.IssuedAtMs == issuedAtMs && token.Active {
			return token, nil
		}
	}
	return model.QRToken{}, trace.NotFound("no matching active token")
}

func (f *fakeStore) activeCount(programID int64) int {
	count := 0
	for _, token := range f.tokens {
		if token.ProgramID == programID && token.Active {
			count++
		}
	}
	return count
}

func newTestManager(store *fakeStore) *Manager {
	return NewManager(store, Codec{Scheme: "trailtag"})
}

func TestCreateRequiresActiveProgram(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	manager := newTestManager(store)

	if _, err := manager.Create(ctx, 1); !trace.IsNotFound(err) {
		t.Fatalf("expected NotFound for missing program, got %v", err)
	}

	store.programs[1] = model.Program{ID: 1, Active: false}
	if _, err := manager.Create(ctx, 1); !trace.IsNotFound(err) {
		t.Fatalf("expected NotFound for inactive program, got %v", err)
	}
}

func TestCreateConflictsWithExistingActiveToken(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.programs[1] = model.Program{ID: 1, Active: true}
	manager := newTestManager(store)

	token, err := manager.Create(ctx, 1)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if token.Version != 1 {
		t.Fatalf("expected version 1, got %d", token.Version)
	}
	if _, err := manager.Create(ctx, 1); !trace.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestRegenerateBumpsVersionAndInvalidatesOldPayload(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.programs[1] = model.Program{ID: 1, Active: true}
	manager := newTestManager(store)

	created, err := manager.Create(ctx, 1)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	oldIssuedAt := created.IssuedAtMs

	manager.now = func() time.Time { return time.Now().Add(time.Minute) }
	regenerated, err := manager.Regenerate(ctx, created.ID)
	if err != nil {
		t.Fatalf("regenerate error: %v", err)
	}
	if regenerated.Version != created.Version+1 {
		t.Fatalf("expected version %d, got %d", created.Version+1, regenerated.Version)
	}
	if regenerated.Payload == created.Payload {
		t.Fatalf("expected payload to change on regenerate")
	}
	if regenerated.IssuedAtMs == oldIssuedAt {
		t.Fatalf("expected issuance timestamp to change")
	}

	// The previously distributed payload no longer resolves.
	if _, err := manager.Lookup(ctx, 1, oldIssuedAt); !trace.IsNotFound(err) {
		t.Fatalf("expected old timestamp lookup to fail, got %v", err)
	}
	if _, err := manager.Lookup(ctx, 1, regenerated.IssuedAtMs); err != nil {
		t.Fatalf("expected new timestamp lookup to succeed, got %v", err)
	}
}

func TestRegenerateUnknownToken(t *testing.T) {
	manager := newTestManager(newFakeStore())
	if _, err := manager.Regenerate(context.Background(), "00000000-0000-0000-0000-000000000000"); !trace.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeactivateKeepsRowAndUnblocksCreate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.programs[1] = model.Program{ID: 1, Active: true}
	manager := newTestManager(store)

	token, err := manager.Create(ctx, 1)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := manager.Deactivate(ctx, token.ID); err != nil {
		t.Fatalf("deactivate error: %v", err)
	}
	// The row survives for history, but no longer resolves.
	if _, err := store.GetQRToken(ctx, token.ID); err != nil {
		t.Fatalf("expected deactivated token row to remain: %v", err)
	}
	if _, err := manager.Lookup(ctx, 1, token.IssuedAtMs); !trace.IsNotFound(err) {
		t.Fatalf("expected lookup of deactivated token to fail, got %v", err)
	}
	// A fresh token may now be created.
	if _, err := manager.Create(ctx, 1); err != nil {
		t.Fatalf("expected create after deactivate to succeed, got %v", err)
	}
}

func TestAtMostOneActiveTokenAcrossLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.programs[1] = model.Program{ID: 1, Active: true}
	manager := newTestManager(store)

	first, err := manager.Create(ctx, 1)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := manager.Regenerate(ctx, first.ID); err != nil {
		t.Fatalf("regenerate error: %v", err)
	}
	if _, err := manager.Create(ctx, 1); !trace.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if err := manager.Deactivate(ctx, first.ID); err != nil {
		t.Fatalf("deactivate error: %v", err)
	}
	if _, err := manager.Create(ctx, 1); err != nil {
		t.Fatalf("create error: %v", err)
	}
	if count := store.activeCount(1); count != 1 {
		t.Fatalf("expected exactly one active token, got %d", count)
	}
}

func TestLookupInactiveProgram(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.programs[1] = model.Program{ID: 1, Active: true}
	manager := newTestManager(store)

	token, err := manager.Create(ctx, 1)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	store.programs[1] = model.Program{ID: 1, Active: false}
	if _, err := manager.Lookup(ctx, 1, token.IssuedAtMs); !trace.IsNotFound(err) {
		t.Fatalf("expected lookup with inactive program to fail, got %v", err)
	}
}
