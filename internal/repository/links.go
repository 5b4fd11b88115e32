package repository

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

func (s *Store) CreateParentLink(ctx context.Context, link model.ParentLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parent_links (parent_id, student_id, relationship, created_at)
		VALUES ($1, $2, $3, $4)
	`, link.ParentID, link.StudentID, link.Relationship, link.CreatedAt)
	if isUniqueViolation(err) {
		return trace.AlreadyExists("link already exists")
	}
	return trace.Wrap(err)
}

func (s *Store) DeleteParentLink(ctx context.Context, parentID, studentID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM parent_links WHERE parent_id = $1 AND student_id = $2
	`, parentID, studentID)
	if err != nil {
		return trace.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return trace.NotFound("link not found")
	}
	return nil
}

func (s *Store) HasParentLink(ctx context.Context, parentID, studentID string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM parent_links WHERE parent_id = $1 AND student_id = $2
		)
	`, parentID, studentID).Scan(&found)
	return found, trace.Wrap(err)
}

func (s *Store) ListParentLinks(ctx context.Context, parentID string) ([]model.ParentLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT parent_id, student_id, relationship, created_at
		FROM parent_links
		WHERE parent_id = $1
		ORDER BY created_at
	`, parentID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	var links []model.ParentLink
	for rows.Next() {
		var link model.ParentLink
		if err := rows.Scan(&link.ParentID, &link.StudentID, &link.Relationship, &link.CreatedAt); err != nil {
			return nil, trace.Wrap(err)
		}
		links = append(links, link)
	}
	return links, trace.Wrap(rows.Err())
}
