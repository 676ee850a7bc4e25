package booking

import (
	"context"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

type CancelRequest struct {
	Reason           string `json:"cancellation_reason" validate:"required,max=1000"`
	FollowUpRequired *bool  `json:"follow_up_required"`
}

// UpdateRequest drives a status change. Fields that do not apply to the
// target status are ignored.
type UpdateRequest struct {
	Status             model.Status         `json:"status" validate:"required,oneof=Scheduled Pending Completed Cancelled"`
	CounselorNotes     string               `json:"counselor_notes" validate:"max=4000"`
	CancellationReason string               `json:"cancellation_reason" validate:"max=1000"`
	FollowUpRequired   *bool                `json:"follow_up_required"`
	SessionNotes       string               `json:"session_notes" validate:"max=4000"`
	ProgressNotes      string               `json:"progress_notes" validate:"max=4000"`
	Goals              []model.GoalProgress `json:"goals" validate:"omitempty,dive"`
}

// Cancel is the requester's own cancellation path.
func (m *Manager) Cancel(ctx context.Context, actor auth.Identity, id string, req CancelRequest) (Result, error) {
	const op = "booking.Cancel"
	if err := m.check(op, req); err != nil {
		return Result{}, err
	}
	return m.transition(ctx, op, actor, id, UpdateRequest{
		Status:             model.StatusCancelled,
		CancellationReason: req.Reason,
		FollowUpRequired:   req.FollowUpRequired,
	})
}

// Update applies any status change the caller's role permits. Students may
// only cancel.
func (m *Manager) Update(ctx context.Context, actor auth.Identity, id string, req UpdateRequest) (Result, error) {
	const op = "booking.Update"
	if err := m.check(op, req); err != nil {
		return Result{}, err
	}
	if actor.Role == auth.RoleStudent && req.Status != model.StatusCancelled {
		return Result{}, model.E(op, model.ErrForbidden, "students may only cancel")
	}
	return m.transition(ctx, op, actor, id, req)
}

func (m *Manager) transition(ctx context.Context, op string, actor auth.Identity, id string, req UpdateRequest) (Result, error) {
	appt, err := m.load(ctx, op, actor, id)
	if err != nil {
		return Result{}, err
	}

	trigger := lifecycle.TriggerRequester
	if actor.IsStaff() {
		trigger = lifecycle.TriggerStaff
	}
	out, err := lifecycle.Apply(appt, lifecycle.Change{
		Target:             req.Status,
		Trigger:            trigger,
		CounselorNotes:     req.CounselorNotes,
		CancellationReason: req.CancellationReason,
		FollowUpRequired:   req.FollowUpRequired,
		SessionNotes:       req.SessionNotes,
		ProgressNotes:      req.ProgressNotes,
		Goals:              req.Goals,
	})
	if err != nil {
		return Result{}, err
	}

	updated, err := m.store.UpdateAppointment(ctx, out.Appointment, out.FromStatus)
	if err != nil {
		return Result{}, storeErr(op, "update appointment", err)
	}
	m.logger.Info("appointment status changed", "appointment_id", id, "from", out.FromStatus, "to", updated.Status, "actor", actor.UserID)

	res := Result{Appointment: updated}
	switch updated.Status {
	case model.StatusCancelled:
		res.Events = []notify.Event{{Type: notify.TypeAppointmentCancelled, Appointment: updated}}
	case model.StatusCompleted:
		res.Events = []notify.Event{{Type: notify.TypeAppointmentCompleted, Appointment: updated}}
		res.GoalFailures = m.applyGoals(ctx, updated, out.GoalUpdates)
	}
	return res, nil
}

// applyGoals records progress goal by goal. Failures are logged and returned;
// they never undo the completion.
func (m *Manager) applyGoals(ctx context.Context, appt model.Appointment, updates []model.GoalProgress) []GoalFailure {
	var failures []GoalFailure
	for _, g := range updates {
		goal, err := m.store.UpdateGoalProgress(ctx, g)
		if err != nil {
			m.logger.Warn("goal progress update failed", "appointment_id", appt.ID, "goal_id", g.GoalID, "err", err)
			failures = append(failures, GoalFailure{GoalID: g.GoalID, Error: err.Error()})
			continue
		}
		m.logger.Info("goal progress updated", "goal_id", goal.ID, "progress", goal.Progress, "status", goal.Status)
	}
	return failures
}

// Delete removes an appointment and its token. Deleting a missing
// appointment succeeds.
func (m *Manager) Delete(ctx context.Context, actor auth.Identity, id string) error {
	const op = "booking.Delete"
	if actor.Role != auth.RoleAdmin {
		return model.E(op, model.ErrForbidden, "only admins can delete appointments")
	}
	existed, err := m.store.DeleteAppointment(ctx, id)
	if err != nil {
		return storeErr(op, "delete appointment", err)
	}
	if existed {
		m.logger.Info("appointment deleted", "appointment_id", id, "actor", actor.UserID)
	}
	return nil
}

func (m *Manager) Get(ctx context.Context, actor auth.Identity, id string) (model.Appointment, error) {
	return m.load(ctx, "booking.Get", actor, id)
}

// List narrows f to what actor may see and returns matches ordered by date
// then time.
func (m *Manager) List(ctx context.Context, actor auth.Identity, f model.AppointmentFilter) ([]model.Appointment, error) {
	const op = "booking.List"
	switch actor.Role {
	case auth.RoleStudent:
		f.StudentID = actor.UserID
	case auth.RoleCounselor:
		f.CounselorID = actor.CounselorID
	case auth.RoleAdmin:
	default:
		return nil, model.E(op, model.ErrForbidden, "unknown role")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.E(op, model.ErrValidation, "unknown status "+string(f.Status))
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	out, err := m.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, storeErr(op, "list appointments", err)
	}
	return out, nil
}
