// Package relationship answers whether a principal may read a student's
// check-in data, backed by parent-student authorization links. Links are
// mutable, so every decision re-reads storage; nothing is cached.
package relationship

import (
	"context"
	"time"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

const defaultRelationship = "guardian"

type Store interface {
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	CreateParentLink(ctx context.Context, link model.ParentLink) error
	DeleteParentLink(ctx context.Context, parentID, studentID string) error
	HasParentLink(ctx context.Context, parentID, studentID string) (bool, error)
	ListParentLinks(ctx context.Context, parentID string) ([]model.ParentLink, error)
}

type Graph struct {
	store Store
}

func NewGraph(store Store) *Graph {
	return &Graph{store: store}
}

// Authorize decides whether the principal may act on the student's data.
// Admins always may; students only on themselves; parents only through an
// existing link.
func (g *Graph) Authorize(ctx context.Context, principal model.Principal, studentID string) error {
	switch principal.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleStudent:
		if principal.ID == studentID {
			return nil
		}
		return trace.AccessDenied("students may only access their own data")
	case model.RoleParent:
		linked, err := g.store.HasParentLink(ctx, principal.ID, studentID)
		if err != nil {
			return trace.Wrap(err)
		}
		if !linked {
			return trace.AccessDenied("no link to student %s", studentID)
		}
		return nil
	default:
		return trace.AccessDenied("unknown role")
	}
}

func (g *Graph) AddLink(ctx context.Context, parentID, studentID, relationship string) (model.ParentLink, error) {
	subject, err := g.store.GetUserByID(ctx, studentID)
	if err != nil {
		return model.ParentLink{}, trace.Wrap(err)
	}
	if subject.Role != model.RoleStudent {
		return model.ParentLink{}, trace.NotFound("user %s is not a student", studentID)
	}
	if relationship == "" {
		relationship = defaultRelationship
	}
	link := model.ParentLink{
		ParentID:     parentID,
		StudentID:    studentID,
		Relationship: relationship,
		CreatedAt:    time.Now().UTC(),
	}
	if err := g.store.CreateParentLink(ctx, link); err != nil {
		return model.ParentLink{}, trace.Wrap(err)
	}
	return link, nil
}

func (g *Graph) RemoveLink(ctx context.Context, parentID, studentID string) error {
	return trace.Wrap(g.store.DeleteParentLink(ctx, parentID, studentID))
}

func (g *Graph) ListLinks(ctx context.Context, parentID string) ([]model.ParentLink, error) {
	links, err := g.store.ListParentLinks(ctx, parentID)
	return links, trace.Wrap(err)
}
