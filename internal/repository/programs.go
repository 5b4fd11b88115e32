package repository

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

func (s *Store) CreateProgram(ctx context.Context, program model.Program) (model.Program, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO programs (name, description, active)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, active, created_at
	`, program.Name, program.Description, program.Active)
	var created model.Program
	if err := row.Scan(&created.ID, &created.Name, &created.Description, &created.Active, &created.CreatedAt); err != nil {
		return model.Program{}, trace.Wrap(err)
	}
	return created, nil
}

func (s *Store) GetProgram(ctx context.Context, programID int64) (model.Program, error) {
	var program model.Program
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, active, created_at
		FROM programs
		WHERE id = $1
	`, programID)
	err := row.Scan(&program.ID, &program.Name, &program.Description, &program.Active, &program.CreatedAt)
	if isNoRows(err) {
		return model.Program{}, trace.NotFound("program %d not found", programID)
	}
	return program, trace.Wrap(err)
}
