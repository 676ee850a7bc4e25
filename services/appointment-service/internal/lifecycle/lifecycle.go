// Package lifecycle holds the appointment status state machine.
//
//	Scheduled --check-in--> Pending
//	Scheduled, Pending --> Completed (counselor notes required)
//	Scheduled, Pending --> Cancelled (cancellation reason required)
//
// Completed and Cancelled are terminal.
package lifecycle

import (
	"strings"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

// Trigger names who asked for a transition.
type Trigger string

const (
	TriggerCheckIn   Trigger = "check-in"
	TriggerStaff     Trigger = "staff"
	TriggerRequester Trigger = "requester"
)

// Change is a requested transition plus its payload.
type Change struct {
	Target             model.Status
	Trigger            Trigger
	CounselorNotes     string
	CancellationReason string
	FollowUpRequired   *bool
	SessionNotes       string
	ProgressNotes      string
	Goals              []model.GoalProgress
}

// Outcome is the appointment after the transition and the goal updates the
// caller must apply.
type Outcome struct {
	Appointment model.Appointment
	GoalUpdates []model.GoalProgress
	FromStatus  model.Status
}

// Apply validates c against the current status of appt and returns the
// updated copy. appt itself is not modified.
func Apply(appt model.Appointment, c Change) (Outcome, error) {
	const op = "lifecycle.Apply"

	from := appt.Status
	if !c.Target.Valid() {
		return Outcome{}, model.E(op, model.ErrValidation, "unknown status "+string(c.Target))
	}

	if c.Target == model.StatusPending {
		if c.Trigger != TriggerCheckIn {
			return Outcome{}, model.E(op, model.ErrInvalidTransition, "pending is reached only by check-in")
		}
		if from != model.StatusScheduled {
			return Outcome{}, model.E(op, model.ErrAlreadyProcessed, "appointment is "+string(from))
		}
		appt.Status = model.StatusPending
		return Outcome{Appointment: appt, FromStatus: from}, nil
	}

	if from.Terminal() {
		return Outcome{}, model.E(op, model.ErrInvalidTransition, string(from)+" is final")
	}

	switch c.Target {
	case model.StatusCompleted:
		if c.Trigger == TriggerRequester {
			return Outcome{}, model.E(op, model.ErrForbidden, "only staff may complete a session")
		}
		notes := strings.TrimSpace(c.CounselorNotes)
		if notes == "" {
			return Outcome{}, model.E(op, model.ErrValidation, "counselor notes are required")
		}
		for _, g := range c.Goals {
			if strings.TrimSpace(g.GoalID) == "" || g.Progress < 0 || g.Progress > 100 {
				return Outcome{}, model.E(op, model.ErrValidation, "goal progress must name a goal and be within 0..100")
			}
		}
		appt.Status = model.StatusCompleted
		appt.CounselorNotes = notes
		if c.SessionNotes != "" {
			appt.SessionNotes = c.SessionNotes
		}
		if c.ProgressNotes != "" {
			appt.ProgressNotes = c.ProgressNotes
		}
		if c.FollowUpRequired != nil {
			appt.FollowUpRequired = *c.FollowUpRequired
		}
		for _, g := range c.Goals {
			if !contains(appt.Goals, g.GoalID) {
				appt.Goals = append(appt.Goals, g.GoalID)
			}
		}
		return Outcome{Appointment: appt, GoalUpdates: c.Goals, FromStatus: from}, nil

	case model.StatusCancelled:
		reason := strings.TrimSpace(c.CancellationReason)
		if reason == "" {
			return Outcome{}, model.E(op, model.ErrValidation, "cancellation reason is required")
		}
		appt.Status = model.StatusCancelled
		appt.CancellationReason = reason
		if c.FollowUpRequired != nil {
			appt.FollowUpRequired = *c.FollowUpRequired
		}
		return Outcome{Appointment: appt, FromStatus: from}, nil
	}

	return Outcome{}, model.E(op, model.ErrInvalidTransition, string(from)+" -> "+string(c.Target))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
