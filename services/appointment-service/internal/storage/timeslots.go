package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

func (s *Store) ListTimeSlots(ctx context.Context, date, counselorID string) ([]model.TimeSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_date, slot_time, counselor_id, program, max_capacity, is_available, updated_at
		FROM time_slots
		WHERE slot_date = $1 AND ($2 = '' OR counselor_id = $2)
		ORDER BY slot_time, counselor_id
	`, date, counselorID)
	if err != nil {
		return nil, classify("storage.ListTimeSlots", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TimeSlot, error) {
		var ts model.TimeSlot
		err := row.Scan(&ts.Date, &ts.Time, &ts.CounselorID, &ts.Program, &ts.MaxCapacity, &ts.IsAvailable, &ts.UpdatedAt)
		return ts, err
	})
	if err != nil {
		return nil, classify("storage.ListTimeSlots", err)
	}
	return out, nil
}

func (s *Store) UpsertTimeSlot(ctx context.Context, ts model.TimeSlot) (model.TimeSlot, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO time_slots (slot_date, slot_time, counselor_id, program, max_capacity, is_available)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slot_date, slot_time, counselor_id) DO UPDATE
		SET program = EXCLUDED.program,
			max_capacity = EXCLUDED.max_capacity,
			is_available = EXCLUDED.is_available,
			updated_at = now()
		RETURNING updated_at
	`, ts.Date, ts.Time, ts.CounselorID, ts.Program, ts.MaxCapacity, ts.IsAvailable).Scan(&ts.UpdatedAt)
	if err != nil {
		return model.TimeSlot{}, classify("storage.UpsertTimeSlot", err)
	}
	return ts, nil
}

// FirstCounselor picks the earliest active assignment for program.
func (s *Store) FirstCounselor(ctx context.Context, program string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT counselor_id
		FROM program_counselors
		WHERE program = $1 AND active
		ORDER BY assigned_at, counselor_id
		LIMIT 1
	`, program).Scan(&id)
	if err != nil {
		return "", classify("storage.FirstCounselor", err)
	}
	return id, nil
}

// UpsertProgramCounselor keeps the original assignment time of an existing
// pair so the counselor order stays stable.
func (s *Store) UpsertProgramCounselor(ctx context.Context, pc model.ProgramCounselor) error {
	var assignedAt *time.Time
	if !pc.AssignedAt.IsZero() {
		assignedAt = &pc.AssignedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO program_counselors (program, counselor_id, active, assigned_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
		ON CONFLICT (program, counselor_id) DO UPDATE
		SET active = EXCLUDED.active
	`, pc.Program, pc.CounselorID, pc.Active, assignedAt)
	return classify("storage.UpsertProgramCounselor", err)
}

func (s *Store) UpdateGoalProgress(ctx context.Context, p model.GoalProgress) (model.Goal, error) {
	var g model.Goal
	var status string
	err := s.pool.QueryRow(ctx, `
		UPDATE goals
		SET progress = $2, status = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, student_id, title, progress, status
	`, p.GoalID, p.Progress, string(model.StatusForProgress(p.Progress))).Scan(&g.ID, &g.StudentID, &g.Title, &g.Progress, &status)
	if err != nil {
		return model.Goal{}, classify("storage.UpdateGoalProgress", err)
	}
	g.Status = model.GoalStatus(status)
	return g, nil
}
