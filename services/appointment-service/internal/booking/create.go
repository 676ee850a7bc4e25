package booking

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

type CreateRequest struct {
	StudentID    string `json:"student_id"`
	Program      string `json:"program" validate:"required,max=100"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Time         string `json:"time" validate:"required,datetime=15:04"`
	ConcernType  string `json:"concern_type" validate:"required,max=200"`
	SessionNotes string `json:"session_notes" validate:"max=4000"`
}

// Create books the first counselor of the requested program into the slot.
// Availability is recomputed here from current store state, and the store
// checks capacity again under its own lock.
func (m *Manager) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (Result, error) {
	const op = "booking.Create"

	switch actor.Role {
	case auth.RoleStudent:
		req.StudentID = actor.UserID
		if req.Program == "" {
			req.Program = actor.Program
		}
	case auth.RoleAdmin:
	default:
		return Result{}, model.E(op, model.ErrForbidden, "only students and admins can book")
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Program = strings.TrimSpace(req.Program)
	req.ConcernType = strings.TrimSpace(req.ConcernType)
	if err := m.check(op, req); err != nil {
		return Result{}, err
	}
	if req.StudentID == "" {
		return Result{}, model.E(op, model.ErrValidation, "student_id is required")
	}
	if !m.cfg.Grid.Contains(req.Time) {
		return Result{}, model.E(op, model.ErrValidation, "time is not a slot start")
	}
	starts, err := model.Appointment{Date: req.Date, Time: req.Time}.StartsAt(m.cfg.Location)
	if err != nil {
		return Result{}, model.Wrap(op, model.ErrValidation, "invalid date or time", err)
	}
	if starts.Before(m.now()) {
		return Result{}, model.E(op, model.ErrValidation, "cannot book a slot in the past")
	}

	counselorID, err := m.store.FirstCounselor(ctx, req.Program)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Result{}, model.E(op, model.ErrNoCounselorAvailable, "no counselor serves "+req.Program)
		}
		return Result{}, storeErr(op, "resolve counselor", err)
	}

	mine, err := m.store.ListAppointments(ctx, model.AppointmentFilter{StudentID: req.StudentID, Date: req.Date})
	if err != nil {
		return Result{}, storeErr(op, "list student bookings", err)
	}
	for _, a := range mine {
		if a.Time == req.Time && a.Status.Active() {
			return Result{}, model.E(op, model.ErrDuplicateBooking, "already booked at "+req.Date+" "+req.Time)
		}
	}

	open, err := m.availableTimes(ctx, req.Date, counselorID)
	if err != nil {
		return Result{}, err
	}
	if !slices.Contains(open, req.Time) {
		return Result{}, model.E(op, model.ErrCapacity, req.Date+" "+req.Time+" is not available")
	}

	appt := model.Appointment{
		ID:              uuid.NewString(),
		StudentID:       req.StudentID,
		CounselorID:     counselorID,
		Program:         req.Program,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: m.cfg.Grid.Minutes(),
		ConcernType:     req.ConcernType,
		Status:          model.StatusScheduled,
		SessionNotes:    req.SessionNotes,
		Goals:           []string{},
	}
	tok, err := m.tokens.Prepare(appt)
	if err != nil {
		return Result{}, err
	}
	if err := m.store.CreateAppointment(ctx, appt, tok, m.cfg.DefaultCapacity); err != nil {
		return Result{}, storeErr(op, "insert appointment", err)
	}
	stored, err := m.store.GetAppointment(ctx, appt.ID)
	if err == nil {
		appt = stored
	}

	m.logger.Info("appointment booked", "appointment_id", appt.ID, "counselor_id", counselorID, "date", appt.Date, "time", appt.Time)
	return Result{
		Appointment: appt,
		Token:       &tok,
		Events:      []notify.Event{{Type: notify.TypeAppointmentBooked, Appointment: appt}},
	}, nil
}

func (m *Manager) availableTimes(ctx context.Context, date, counselorID string) ([]string, error) {
	const op = "booking.availability"

	overrides, err := m.store.ListTimeSlots(ctx, date, counselorID)
	if err != nil {
		return nil, storeErr(op, "list time slots", err)
	}
	occupancy, err := m.store.Occupancy(ctx, date, counselorID)
	if err != nil {
		return nil, storeErr(op, "count bookings", err)
	}
	open, err := availability.AvailableTimes(m.cfg.Grid, availability.Day{
		Date:            date,
		Overrides:       overrides,
		Occupancy:       occupancy,
		DefaultCapacity: m.cfg.DefaultCapacity,
		Now:             m.now(),
		Location:        m.cfg.Location,
	})
	if err != nil {
		return nil, model.Wrap(op, model.ErrValidation, "invalid date", err)
	}
	return open, nil
}
