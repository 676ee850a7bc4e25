// Package checkin issues the scannable token handed out at booking time and
// redeems it when the student shows up.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

// Store is the persistence the service needs. Redeem must mark the token
// scanned and move the appointment from Scheduled to Pending as one step,
// failing with ErrAlreadyUsedOrInvalid or ErrAlreadyProcessed when either
// precondition no longer holds.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	CreateToken(ctx context.Context, tok model.CheckInToken) error
	TokenByNonce(ctx context.Context, nonce string) (model.CheckInToken, error)
	TokenForAppointment(ctx context.Context, appointmentID string) (model.CheckInToken, error)
	Redeem(ctx context.Context, tokenID, appointmentID string, at time.Time) (model.Appointment, error)
}

// Guard debounces concurrent scans of the same code.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

type Config struct {
	Grace        time.Duration
	Location     *time.Location
	RedirectBase string
	Clock        func() time.Time
}

type Service struct {
	store  Store
	codec  *Codec
	guard  Guard
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

func NewService(store Store, codec *Codec, guard Guard, logger *slog.Logger, cfg Config) *Service {
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, codec: codec, guard: guard, logger: logger, cfg: cfg, now: now}
}

// Result is a successful check-in.
type Result struct {
	Appointment model.Appointment
	Token       model.CheckInToken
	Events      []notify.Event
}

// Prepare builds a sealed token for appt without persisting it. The
// appointment must already carry its id.
func (s *Service) Prepare(appt model.Appointment) (model.CheckInToken, error) {
	const op = "checkin.Prepare"

	starts, err := appt.StartsAt(s.cfg.Location)
	if err != nil {
		return model.CheckInToken{}, model.Wrap(op, model.ErrValidation, "appointment has no valid start", err)
	}
	expires := starts.Add(s.cfg.Grace)
	p, raw, err := s.codec.Seal(Payload{
		AppointmentID: appt.ID,
		StudentID:     appt.StudentID,
		Date:          appt.Date,
		Time:          appt.Time,
		Program:       appt.Program,
		CounselorID:   appt.CounselorID,
		Nonce:         uuid.NewString(),
		Exp:           expires.Unix(),
	})
	if err != nil {
		return model.CheckInToken{}, model.Wrap(op, model.ErrPersistence, "seal payload", err)
	}
	return model.CheckInToken{
		ID:            uuid.NewString(),
		AppointmentID: appt.ID,
		StudentID:     appt.StudentID,
		Nonce:         p.Nonce,
		Payload:       raw,
		Checksum:      p.Hash,
		Status:        model.TokenGenerated,
		ExpiresAt:     expires,
		CreatedAt:     s.now(),
	}, nil
}

// Issue mints and stores a token for an existing appointment.
func (s *Service) Issue(ctx context.Context, appt model.Appointment) (model.CheckInToken, error) {
	tok, err := s.Prepare(appt)
	if err != nil {
		return model.CheckInToken{}, err
	}
	if err := s.store.CreateToken(ctx, tok); err != nil {
		return model.CheckInToken{}, model.Wrap("checkin.Issue", model.ErrPersistence, "store token", err)
	}
	return tok, nil
}

// Verify redeems a scanned payload. The checks run in a fixed order: payload
// integrity, appointment existence, token usage, appointment state. The
// final redeem is conditional on both token and appointment state.
func (s *Service) Verify(ctx context.Context, raw string) (Result, error) {
	const op = "checkin.Verify"
	now := s.now()

	p, err := s.codec.Open(raw, now)
	if err != nil {
		return Result{}, err
	}

	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, p.Nonce)
		switch {
		case err != nil:
			s.logger.Warn("scan guard unavailable", "err", err)
		case !ok:
			return Result{}, model.E(op, model.ErrAlreadyUsedOrInvalid, "scan already in progress")
		default:
			defer s.guard.Release(context.WithoutCancel(ctx), p.Nonce)
		}
	}

	appt, err := s.store.GetAppointment(ctx, p.AppointmentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Result{}, model.E(op, model.ErrInvalidToken, "appointment no longer exists")
		}
		return Result{}, model.Wrap(op, model.ErrPersistence, "load appointment", err)
	}
	if appt.StudentID != p.StudentID || appt.CounselorID != p.CounselorID || appt.Date != p.Date || appt.Time != p.Time {
		return Result{}, model.E(op, model.ErrInvalidToken, "payload does not match appointment")
	}

	tok, err := s.store.TokenByNonce(ctx, p.Nonce)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Result{}, model.E(op, model.ErrAlreadyUsedOrInvalid, "no token for this code")
		}
		return Result{}, model.Wrap(op, model.ErrPersistence, "load token", err)
	}
	if tok.AppointmentID != appt.ID || tok.Status != model.TokenGenerated {
		return Result{}, model.E(op, model.ErrAlreadyUsedOrInvalid, "token already scanned")
	}
	if appt.Status != model.StatusScheduled {
		return Result{}, model.E(op, model.ErrInvalidState, "appointment is "+string(appt.Status))
	}
	if _, err := lifecycle.Apply(appt, lifecycle.Change{Target: model.StatusPending, Trigger: lifecycle.TriggerCheckIn}); err != nil {
		return Result{}, err
	}

	updated, err := s.store.Redeem(ctx, tok.ID, appt.ID, now)
	if err != nil {
		if kind := model.KindOf(err); kind == model.ErrAlreadyUsedOrInvalid || kind == model.ErrAlreadyProcessed {
			return Result{}, err
		}
		return Result{}, model.Wrap(op, model.ErrPersistence, "redeem token", err)
	}
	tok.Status = model.TokenScanned
	tok.ScannedAt = &now

	s.logger.Info("student checked in", "appointment_id", appt.ID, "counselor_id", appt.CounselorID)
	return Result{
		Appointment: updated,
		Token:       tok,
		Events: []notify.Event{{
			Type:        notify.TypeAppointmentCheckedIn,
			Appointment: updated,
			Notice: &notify.Notice{
				CounselorID:   updated.CounselorID,
				AppointmentID: updated.ID,
				Message:       fmt.Sprintf("Student %s checked in for the %s %s session", updated.StudentID, updated.Date, updated.Time),
				RedirectURL:   s.redirect(updated.ID),
			},
		}},
	}, nil
}

// Code returns the serialized payload of the appointment's token.
func (s *Service) Code(ctx context.Context, appointmentID string) (string, error) {
	const op = "checkin.Code"
	tok, err := s.store.TokenForAppointment(ctx, appointmentID)
	if err == nil {
		return tok.Payload, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return "", model.Wrap(op, model.ErrPersistence, "load token", err)
	}
	// Appointments stored without a token get one on first request while
	// they can still be checked in.
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return "", err
	}
	if appt.Status != model.StatusScheduled {
		return "", model.E(op, model.ErrNotFound, "no check-in code for "+appointmentID)
	}
	tok, err = s.Issue(ctx, appt)
	if err != nil {
		return "", err
	}
	return tok.Payload, nil
}

func (s *Service) redirect(appointmentID string) string {
	return strings.TrimRight(s.cfg.RedirectBase, "/") + "/appointments/" + appointmentID
}
