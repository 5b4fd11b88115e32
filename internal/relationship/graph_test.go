package relationship

import (
	"context"
	"testing"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

type fakeStore struct {
	users map[string]model.User
	links map[string]model.ParentLink
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]model.User),
		links: make(map[string]model.ParentLink),
	}
}

func linkKey(parentID, studentID string) string {
	return parentID + "/" + studentID
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (model.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, trace.NotFound("user %s not found", userID)
	}
	return user, nil
}

func (f *fakeStore) CreateParentLink(_ context.Context, link model.ParentLink) error {
	key := linkKey(link.ParentID, link.StudentID)
	if _, ok := f.links[key]; ok {
		return trace.AlreadyExists("link already exists")
	}
	f.links[key] = link
	return nil
}

func (f *fakeStore) DeleteParentLink(_ context.Context, parentID, studentID string) error {
	key := linkKey(parentID, studentID)
	if _, ok := f.links[key]; !ok {
		return trace.NotFound("link not found")
	}
	delete(f.links, key)
	return nil
}

func (f *fakeStore) HasParentLink(_ context.Context, parentID, studentID string) (bool, error) {
	_, ok := f.links[linkKey(parentID, studentID)]
	return ok, nil
}

func (f *fakeStore) ListParentLinks(_ context.Context, parentID string) ([]model.ParentLink, error) {
	var links []model.ParentLink
	for _, link := range f.links {
		if link.ParentID == parentID {
			links = append(links, link)
		}
	}
	return links, nil
}

const (
	parentID  = "aaaaaaaa-0000-0000-0000-000000000001"
	studentID = "aaaaaaaa-0000-0000-0000-000000000002"
)

func seededStore() *fakeStore {
	store := newFakeStore()
	store.users[parentID] = model.User{ID: parentID, Username: "pat", Role: model.RoleParent}
	store.users[studentID] = model.User{ID: studentID, Username: "sam", Role: model.RoleStudent}
	return store
}

func TestAuthorizeRoleMatrix(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	graph := NewGraph(store)

	admin := model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	if err := graph.Authorize(ctx, admin, studentID); err != nil {
		t.Fatalf("expected admin access, got %v", err)
	}

	self := model.Principal{ID: studentID, Role: model.RoleStudent}
	if err := graph.Authorize(ctx, self, studentID); err != nil {
		t.Fatalf("expected self access, got %v", err)
	}
	other := model.Principal{ID: "someone-else", Role: model.RoleStudent}
	if err := graph.Authorize(ctx, other, studentID); !trace.IsAccessDenied(err) {
		t.Fatalf("expected AccessDenied for another student, got %v", err)
	}

	parent := model.Principal{ID: parentID, Role: model.RoleParent}
	if err := graph.Authorize(ctx, parent, studentID); !trace.IsAccessDenied(err) {
		t.Fatalf("expected AccessDenied without link, got %v", err)
	}
}

func TestLinkLifecycleGovernsAccess(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	graph := NewGraph(store)
	parent := model.Principal{ID: parentID, Role: model.RoleParent}

	if err := graph.Authorize(ctx, parent, studentID); !trace.IsAccessDenied(err) {
		t.Fatalf("expected AccessDenied before link, got %v", err)
	}

	link, err := graph.AddLink(ctx, parentID, studentID, "")
	if err != nil {
		t.Fatalf("add link error: %v", err)
	}
	if link.Relationship != "guardian" {
		t.Fatalf("expected default relationship, got %q", link.Relationship)
	}
	if err := graph.Authorize(ctx, parent, studentID); err != nil {
		t.Fatalf("expected access after link, got %v", err)
	}

	// Access decisions re-read the store, so removal takes effect at once.
	if err := graph.RemoveLink(ctx, parentID, studentID); err != nil {
		t.Fatalf("remove link error: %v", err)
	}
	if err := graph.Authorize(ctx, parent, studentID); !trace.IsAccessDenied(err) {
		t.Fatalf("expected AccessDenied after removal, got %v", err)
	}
}

func TestAddLinkValidation(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	graph := NewGraph(store)

	if _, err := graph.AddLink(ctx, parentID, "missing-user", "guardian"); !trace.IsNotFound(err) {
		t.Fatalf("expected NotFound for missing user, got %v", err)
	}
	// The subject must actually be a student.
	if _, err := graph.AddLink(ctx, parentID, parentID, "guardian"); !trace.IsNotFound(err) {
		t.Fatalf("expected NotFound for non-student subject, got %v", err)
	}

	if _, err := graph.AddLink(ctx, parentID, studentID, "mother"); err != nil {
		t.Fatalf("add link error: %v", err)
	}
	if _, err := graph.AddLink(ctx, parentID, studentID, "mother"); !trace.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists for duplicate pair, got %v", err)
	}
}

func TestRemoveLinkMissing(t *testing.T) {
	graph := NewGraph(seededStore())
	if err := graph.RemoveLink(context.Background(), parentID, studentID); !trace.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
