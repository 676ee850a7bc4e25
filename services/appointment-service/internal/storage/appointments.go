package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

const appointmentColumns = `id, student_id, counselor_id, program, appt_date, appt_time, duration_minutes,
	concern_type, status, follow_up_required, session_notes, counselor_notes, cancellation_reason,
	goals, progress_notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.StudentID, &a.CounselorID, &a.Program, &a.Date, &a.Time, &a.DurationMinutes,
		&a.ConcernType, &status, &a.FollowUpRequired, &a.SessionNotes, &a.CounselorNotes, &a.CancellationReason,
		&a.Goals, &a.ProgressNotes, &a.CreatedAt, &a.UpdatedAt)
	a.Status = model.Status(status)
	if a.Goals == nil {
		a.Goals = []string{}
	}
	return a, err
}

// CreateAppointment serializes bookings of one slot on its slot_locks row,
// then re-checks capacity and inserts the appointment with its token.
func (s *Store) CreateAppointment(ctx context.Context, appt model.Appointment, tok model.CheckInToken, defaultCapacity int) error {
	const op = "storage.CreateAppointment"

	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO slot_locks (slot_date, slot_time, counselor_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, appt.Date, appt.Time, appt.CounselorID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			SELECT 1 FROM slot_locks
			WHERE slot_date = $1 AND slot_time = $2 AND counselor_id = $3
			FOR UPDATE
		`, appt.Date, appt.Time, appt.CounselorID); err != nil {
			return err
		}

		var duplicate bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE student_id = $1 AND appt_date = $2 AND appt_time = $3 AND status <> 'Cancelled'
			)
		`, appt.StudentID, appt.Date, appt.Time).Scan(&duplicate); err != nil {
			return err
		}
		if duplicate {
			return model.E(op, model.ErrDuplicateBooking, "student already booked this slot")
		}

		override, err := slotOverride(ctx, tx, appt.Slot())
		if err != nil {
			return err
		}
		var occupancy int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM appointments
			WHERE counselor_id = $1 AND appt_date = $2 AND appt_time = $3 AND status <> 'Cancelled'
		`, appt.CounselorID, appt.Date, appt.Time).Scan(&occupancy); err != nil {
			return err
		}
		if !availability.SlotOpen(override, occupancy, defaultCapacity) {
			return model.E(op, model.ErrCapacity, "slot is full or blocked")
		}

		goals := appt.Goals
		if goals == nil {
			goals = []string{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, student_id, counselor_id, program, appt_date, appt_time, duration_minutes, concern_type,
				 status, follow_up_required, session_notes, counselor_notes, cancellation_reason, goals, progress_notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, appt.ID, appt.StudentID, appt.CounselorID, appt.Program, appt.Date, appt.Time, appt.DurationMinutes,
			appt.ConcernType, string(appt.Status), appt.FollowUpRequired, appt.SessionNotes, appt.CounselorNotes,
			appt.CancellationReason, goals, appt.ProgressNotes); err != nil {
			return err
		}
		if tok.ID != "" {
			return insertToken(ctx, tx, tok)
		}
		return nil
	})
	return classify(op, err)
}

func slotOverride(ctx context.Context, q pgx.Tx, key model.SlotKey) (*model.TimeSlot, error) {
	ts := model.TimeSlot{Date: key.Date, Time: key.Time, CounselorID: key.CounselorID}
	err := q.QueryRow(ctx, `
		SELECT program, max_capacity, is_available, updated_at
		FROM time_slots
		WHERE slot_date = $1 AND slot_time = $2 AND counselor_id = $3
	`, key.Date, key.Time, key.CounselorID).Scan(&ts.Program, &ts.MaxCapacity, &ts.IsAvailable, &ts.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return model.Appointment{}, classify("storage.GetAppointment", err)
	}
	return appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.CounselorID != "" {
		add("counselor_id = $%d", f.CounselorID)
	}
	if f.Program != "" {
		add("program = $%d", f.Program)
	}
	if f.Date != "" {
		add("appt_date = $%d", f.Date)
	}
	if f.DateFrom != "" {
		add("appt_date >= $%d", f.DateFrom)
	}
	if f.DateTo != "" {
		add("appt_date <= $%d", f.DateTo)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appt_date ASC, appt_time ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("storage.ListAppointments", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		return nil, classify("storage.ListAppointments", err)
	}
	return out, nil
}

// UpdateAppointment writes the mutable fields only while the row still has
// the expected status.
func (s *Store) UpdateAppointment(ctx context.Context, appt model.Appointment, expected model.Status) (model.Appointment, error) {
	const op = "storage.UpdateAppointment"

	goals := appt.Goals
	if goals == nil {
		goals = []string{}
	}
	updated, err := scanAppointment(s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			follow_up_required = $4,
			session_notes = $5,
			counselor_notes = $6,
			cancellation_reason = $7,
			goals = $8,
			progress_notes = $9,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		appt.ID, string(expected), string(appt.Status), appt.FollowUpRequired, appt.SessionNotes,
		appt.CounselorNotes, appt.CancellationReason, goals, appt.ProgressNotes))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, classify(op, err)
	}

	var current string
	if err := s.pool.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, appt.ID).Scan(&current); err != nil {
		return model.Appointment{}, classify(op, err)
	}
	return model.Appointment{}, model.E(op, model.ErrAlreadyProcessed, "appointment changed to "+current)
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return false, classify("storage.DeleteAppointment", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Occupancy(ctx context.Context, date, counselorID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT appt_time, count(*)
		FROM appointments
		WHERE counselor_id = $1 AND appt_date = $2 AND status <> 'Cancelled'
		GROUP BY appt_time
	`, counselorID, date)
	if err != nil {
		return nil, classify("storage.Occupancy", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, classify("storage.Occupancy", err)
		}
		out[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("storage.Occupancy", err)
	}
	return out, nil
}
