// Package booking creates, lists and transitions appointments on behalf of
// an authenticated caller. Operations are synchronous and return the events
// their effects should produce; they never notify anyone themselves.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

// Store is the appointment persistence. CreateAppointment must re-check slot
// capacity and the per-student rule atomically with the insert, and
// UpdateAppointment must only write while the stored status equals expected.
type Store interface {
	CreateAppointment(ctx context.Context, appt model.Appointment, tok model.CheckInToken, defaultCapacity int) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	UpdateAppointment(ctx context.Context, appt model.Appointment, expected model.Status) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) (bool, error)
	Occupancy(ctx context.Context, date, counselorID string) (map[string]int, error)
	ListTimeSlots(ctx context.Context, date, counselorID string) ([]model.TimeSlot, error)
	UpsertTimeSlot(ctx context.Context, ts model.TimeSlot) (model.TimeSlot, error)
	FirstCounselor(ctx context.Context, program string) (string, error)
	UpdateGoalProgress(ctx context.Context, p model.GoalProgress) (model.Goal, error)
}

// Tokens mints the check-in token stored together with a new appointment.
type Tokens interface {
	Prepare(appt model.Appointment) (model.CheckInToken, error)
}

type Config struct {
	Grid            availability.Grid
	DefaultCapacity int
	Location        *time.Location
	Clock           func() time.Time
}

type Manager struct {
	store    Store
	tokens   Tokens
	validate *validator.Validate
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewManager(store Store, tokens Tokens, logger *slog.Logger, cfg Config) (*Manager, error) {
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Manager{
		store:    store,
		tokens:   tokens,
		validate: v,
		logger:   logger,
		cfg:      cfg,
		now:      now,
	}, nil
}

// Result is the outcome of a write.
type Result struct {
	Appointment  model.Appointment
	Token        *model.CheckInToken
	Events       []notify.Event
	GoalFailures []GoalFailure
}

// GoalFailure records a goal update that did not apply. The status change it
// belonged to stays committed.
type GoalFailure struct {
	GoalID string `json:"goal_id"`
	Error  string `json:"error"`
}

// canSee reports whether actor may read or act on appt at all.
func canSee(actor auth.Identity, appt model.Appointment) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleCounselor:
		return actor.CounselorID != "" && appt.CounselorID == actor.CounselorID
	case auth.RoleStudent:
		return actor.UserID != "" && appt.StudentID == actor.UserID
	}
	return false
}

func (m *Manager) load(ctx context.Context, op string, actor auth.Identity, id string) (model.Appointment, error) {
	appt, err := m.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, storeErr(op, "load appointment", err)
	}
	if !canSee(actor, appt) {
		return model.Appointment{}, model.E(op, model.ErrForbidden, "not your appointment")
	}
	return appt, nil
}

// storeErr keeps domain kinds raised by the store and classifies everything
// else as a persistence failure.
func storeErr(op, msg string, err error) error {
	var me *model.Error
	if errors.As(err, &me) && me.Kind != model.ErrPersistence {
		return err
	}
	return model.Wrap(op, model.ErrPersistence, msg, err)
}
