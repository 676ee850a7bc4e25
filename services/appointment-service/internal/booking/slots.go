package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

// Availability lists the open times of date for the counselor that would be
// assigned to program.
type Availability struct {
	Date        string   `json:"date"`
	Program     string   `json:"program"`
	CounselorID string   `json:"counselor_id"`
	Duration    int      `json:"duration"`
	Times       []string `json:"times"`
}

func (m *Manager) Availability(ctx context.Context, date, program string) (Availability, error) {
	const op = "booking.Availability"

	program = strings.TrimSpace(program)
	if program == "" {
		return Availability{}, model.E(op, model.ErrValidation, "program is required")
	}
	if _, err := time.ParseInLocation(model.DateLayout, date, m.cfg.Location); err != nil {
		return Availability{}, model.Wrap(op, model.ErrValidation, "date must be YYYY-MM-DD", err)
	}
	counselorID, err := m.store.FirstCounselor(ctx, program)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Availability{}, model.E(op, model.ErrNoCounselorAvailable, "no counselor serves "+program)
		}
		return Availability{}, storeErr(op, "resolve counselor", err)
	}
	times, err := m.availableTimes(ctx, date, counselorID)
	if err != nil {
		return Availability{}, err
	}
	if times == nil {
		times = []string{}
	}
	return Availability{Date: date, Program: program, CounselorID: counselorID, Duration: m.cfg.Grid.Minutes(), Times: times}, nil
}

type TimeSlotRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,datetime=15:04"`
	CounselorID string `json:"counselor_id"`
	Program     string `json:"program" validate:"max=100"`
	MaxCapacity int    `json:"max_capacity" validate:"gte=0,lte=100"`
	IsAvailable *bool  `json:"is_available"`
}

// SetTimeSlot writes a capacity override. Counselors manage their own slots;
// admins name the counselor.
func (m *Manager) SetTimeSlot(ctx context.Context, actor auth.Identity, req TimeSlotRequest) (model.TimeSlot, error) {
	const op = "booking.SetTimeSlot"

	switch actor.Role {
	case auth.RoleCounselor:
		if req.CounselorID != "" && req.CounselorID != actor.CounselorID {
			return model.TimeSlot{}, model.E(op, model.ErrForbidden, "counselors manage only their own slots")
		}
		req.CounselorID = actor.CounselorID
		if req.Program == "" {
			req.Program = actor.Program
		}
	case auth.RoleAdmin:
	default:
		return model.TimeSlot{}, model.E(op, model.ErrForbidden, "only staff can change slots")
	}
	if err := m.check(op, req); err != nil {
		return model.TimeSlot{}, err
	}
	if req.CounselorID == "" {
		return model.TimeSlot{}, model.E(op, model.ErrValidation, "counselor_id is required")
	}
	if !m.cfg.Grid.Contains(req.Time) {
		return model.TimeSlot{}, model.E(op, model.ErrValidation, "time is not a slot start")
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	ts, err := m.store.UpsertTimeSlot(ctx, model.TimeSlot{
		Date:        req.Date,
		Time:        req.Time,
		CounselorID: req.CounselorID,
		Program:     req.Program,
		MaxCapacity: req.MaxCapacity,
		IsAvailable: available,
	})
	if err != nil {
		return model.TimeSlot{}, storeErr(op, "upsert time slot", err)
	}
	m.logger.Info("time slot override saved", "date", ts.Date, "time", ts.Time, "counselor_id", ts.CounselorID,
		"max_capacity", ts.MaxCapacity, "is_available", ts.IsAvailable)
	return ts, nil
}

// ListTimeSlots returns the overrides of date. Counselors see only their own.
func (m *Manager) ListTimeSlots(ctx context.Context, actor auth.Identity, date, counselorID string) ([]model.TimeSlot, error) {
	const op = "booking.ListTimeSlots"

	switch actor.Role {
	case auth.RoleCounselor:
		counselorID = actor.CounselorID
	case auth.RoleAdmin:
	default:
		return nil, model.E(op, model.ErrForbidden, "only staff can list slots")
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, model.Wrap(op, model.ErrValidation, "date must be YYYY-MM-DD", err)
	}
	out, err := m.store.ListTimeSlots(ctx, date, counselorID)
	if err != nil {
		return nil, storeErr(op, "list time slots", err)
	}
	return out, nil
}
