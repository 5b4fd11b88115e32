package repository

import (
	"context"
	"time"

	"github.com/gravitational/trace"

	"github.com/hurxxxx/trailtag-sub001/internal/model"
)

func (s *Store) CreateCheckIn(ctx context.Context, checkIn model.CheckIn) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO check_ins (id, student_id, program_id, token_id, checked_in_at, location)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, checkIn.ID, checkIn.StudentID, checkIn.ProgramID, checkIn.TokenID, checkIn.CheckedInAt, checkIn.Location)
	return trace.Wrap(err)
}

// HasRecentCheckIn reports whether the student already checked in to the
// program at or after the cutoff. The debounce window is recomputed from
// persisted history on every request.
func (s *Store) HasRecentCheckIn(ctx context.Context, studentID string, programID int64, cutoff time.Time) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM check_ins
			WHERE student_id = $1 AND program_id = $2 AND checked_in_at >= $3
		)
	`, studentID, programID, cutoff).Scan(&found)
	return found, trace.Wrap(err)
}

func (s *Store) ListCheckInsByStudent(ctx context.Context, studentID string, limit int32) ([]model.CheckIn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, program_id, token_id, checked_in_at, location
		FROM check_ins
		WHERE student_id = $1
		ORDER BY checked_in_at DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	var checkIns []model.CheckIn
	for rows.Next() {
		var checkIn model.CheckIn
		if err := rows.Scan(
			&checkIn.ID,
			&checkIn.StudentID,
			&checkIn.ProgramID,
			&checkIn.TokenID,
			&checkIn.CheckedInAt,
			&checkIn.Location,
		); err != nil {
			return nil, trace.Wrap(err)
		}
		checkIns = append(checkIns, checkIn)
	}
	return checkIns, trace.Wrap(rows.Err())
}
