package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

const tokenColumns = `id, appointment_id, student_id, nonce, payload, checksum, status, expires_at, scanned_at, created_at`

func scanToken(row pgx.Row) (model.CheckInToken, error) {
	var t model.CheckInToken
	var status string
	err := row.Scan(&t.ID, &t.AppointmentID, &t.StudentID, &t.Nonce, &t.Payload, &t.Checksum, &status,
		&t.ExpiresAt, &t.ScannedAt, &t.CreatedAt)
	t.Status = model.TokenStatus(status)
	return t, err
}

func insertToken(ctx context.Context, tx pgx.Tx, t model.CheckInToken) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO check_in_tokens (id, appointment_id, student_id, nonce, payload, checksum, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.AppointmentID, t.StudentID, t.Nonce, t.Payload, t.Checksum, string(t.Status), t.ExpiresAt)
	return err
}

func (s *Store) CreateToken(ctx context.Context, t model.CheckInToken) error {
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return insertToken(ctx, tx, t)
	})
	return classify("storage.CreateToken", err)
}

func (s *Store) TokenByNonce(ctx context.Context, nonce string) (model.CheckInToken, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM check_in_tokens WHERE nonce = $1`, nonce))
	if err != nil {
		return model.CheckInToken{}, classify("storage.TokenByNonce", err)
	}
	return t, nil
}

func (s *Store) TokenForAppointment(ctx context.Context, appointmentID string) (model.CheckInToken, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM check_in_tokens
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID))
	if err != nil {
		return model.CheckInToken{}, classify("storage.TokenForAppointment", err)
	}
	return t, nil
}

// Redeem flips the token to scanned and the appointment to Pending in one
// transaction. Either conditional update matching no row aborts both.
func (s *Store) Redeem(ctx context.Context, tokenID, appointmentID string, at time.Time) (model.Appointment, error) {
	const op = "storage.Redeem"

	var appt model.Appointment
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE check_in_tokens
			SET status = 'scanned', scanned_at = $3
			WHERE id = $1 AND appointment_id = $2 AND status = 'generated'
		`, tokenID, appointmentID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.E(op, model.ErrAlreadyUsedOrInvalid, "token already scanned")
		}

		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'Pending', updated_at = $2
			WHERE id = $1 AND status = 'Scheduled'
			RETURNING `+appointmentColumns, appointmentID, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return model.E(op, model.ErrAlreadyProcessed, "appointment is no longer scheduled")
		}
		return err
	})
	if err != nil {
		return model.Appointment{}, classify(op, err)
	}
	return appt, nil
}
