package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/checkin"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/memstore"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

var (
	admin     = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
	counselor = auth.Identity{UserID: "u-c1", Role: auth.RoleCounselor, Program: "CS", CounselorID: "c1"}
	other     = auth.Identity{UserID: "u-c9", Role: auth.RoleCounselor, Program: "CS", CounselorID: "c9"}
)

func student(id string) auth.Identity {
	return auth.Identity{UserID: id, Role: auth.RoleStudent, Program: "CS"}
}

type env struct {
	mgr   *Manager
	store *memstore.Store
	codes *checkin.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	require.NoError(t, store.UpsertProgramCounselor(ctx, model.ProgramCounselor{
		CounselorID: "c1", Program: "CS", Active: true, AssignedAt: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	}))

	codec, err := checkin.NewCodec([]byte("booking-tests-secret-value"))
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	codes := checkin.NewService(store, codec, nil, logger, checkin.Config{Clock: clock})

	mgr, err := NewManager(store, codes, logger, Config{
		Grid:            availability.Grid{Start: 8 * time.Hour, End: 17 * time.Hour, SlotDuration: time.Hour},
		DefaultCapacity: 1,
		Clock:           clock,
	})
	require.NoError(t, err)
	return env{mgr: mgr, store: store, codes: codes}
}

func (e env) book(t *testing.T, who auth.Identity, date, at string) (Result, error) {
	t.Helper()
	return e.mgr.Create(context.Background(), who, CreateRequest{Date: date, Time: at, ConcernType: "stress"})
}

func TestCreateAssignsCounselorAndToken(t *testing.T) {
	e := newEnv(t)

	res, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)
	assert.Equal(t, "c1", res.Appointment.CounselorID)
	assert.Equal(t, "s1", res.Appointment.StudentID)
	assert.Equal(t, model.StatusScheduled, res.Appointment.Status)
	assert.Equal(t, 60, res.Appointment.DurationMinutes)
	require.NotNil(t, res.Token)
	assert.Equal(t, model.TokenGenerated, res.Token.Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, notify.TypeAppointmentBooked, res.Events[0].Type)

	code, err := e.codes.Code(context.Background(), res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Token.Payload, code)
}

func TestCreateRejectsFullSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.mgr.SetTimeSlot(ctx, counselor, TimeSlotRequest{Date: "2025-03-10", Time: "09:00", MaxCapacity: 2})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := e.book(t, student(fmt.Sprintf("s%d", i)), "2025-03-10", "09:00")
		require.NoError(t, err)
	}
	_, err = e.book(t, student("s3"), "2025-03-10", "09:00")
	assert.ErrorIs(t, err, model.ErrCapacity)
}

func TestCreateRejectsBlockedSlot(t *testing.T) {
	e := newEnv(t)
	blocked := false
	_, err := e.mgr.SetTimeSlot(context.Background(), counselor, TimeSlotRequest{
		Date: "2025-03-10", Time: "10:00", MaxCapacity: 4, IsAvailable: &blocked,
	})
	require.NoError(t, err)

	_, err = e.book(t, student("s1"), "2025-03-10", "10:00")
	assert.ErrorIs(t, err, model.ErrCapacity)

	slots, err := e.mgr.Availability(context.Background(), "2025-03-10", "CS")
	require.NoError(t, err)
	assert.NotContains(t, slots.Times, "10:00")
	assert.Contains(t, slots.Times, "11:00")
}

func TestCreateRejectsSecondBookingBySameStudent(t *testing.T) {
	e := newEnv(t)
	_, err := e.mgr.SetTimeSlot(context.Background(), counselor, TimeSlotRequest{Date: "2025-03-10", Time: "09:00", MaxCapacity: 3})
	require.NoError(t, err)

	first, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)
	_, err = e.book(t, student("s1"), "2025-03-10", "09:00")
	assert.ErrorIs(t, err, model.ErrDuplicateBooking)

	_, err = e.mgr.Cancel(context.Background(), student("s1"), first.Appointment.ID, CancelRequest{Reason: "clash"})
	require.NoError(t, err)
	_, err = e.book(t, student("s1"), "2025-03-10", "09:00")
	assert.NoError(t, err)
}

func TestCreateReportsDuplicateAtDefaultCapacity(t *testing.T) {
	e := newEnv(t)

	_, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)
	_, err = e.book(t, student("s1"), "2025-03-10", "09:00")
	assert.ErrorIs(t, err, model.ErrDuplicateBooking)
	assert.NotErrorIs(t, err, model.ErrCapacity)

	_, err = e.book(t, student("s2"), "2025-03-10", "09:00")
	assert.ErrorIs(t, err, model.ErrCapacity)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)

	_, err := e.book(t, student("s1"), "2025-02-27", "09:00")
	assert.ErrorIs(t, err, model.ErrValidation, "past date")

	_, err = e.book(t, student("s1"), "2025-03-10", "09:30")
	assert.ErrorIs(t, err, model.ErrValidation, "off-grid time")

	_, err = e.book(t, student("s1"), "10/03/2025", "09:00")
	assert.ErrorIs(t, err, model.ErrValidation, "bad date format")

	_, err = e.mgr.Create(context.Background(), student("s1"), CreateRequest{Date: "2025-03-10", Time: "09:00"})
	assert.ErrorIs(t, err, model.ErrValidation, "missing concern")

	_, err = e.book(t, counselor, "2025-03-10", "09:00")
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestCreateWithoutCounselor(t *testing.T) {
	e := newEnv(t)
	_, err := e.mgr.Create(context.Background(), auth.Identity{UserID: "s1", Role: auth.RoleStudent, Program: "Law"},
		CreateRequest{Date: "2025-03-10", Time: "09:00", ConcernType: "stress"})
	assert.ErrorIs(t, err, model.ErrNoCounselorAvailable)
}

func TestCompleteUpdatesGoals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.PutGoal(ctx, model.Goal{ID: "g1", StudentID: "s1", Title: "Sleep", Status: model.GoalNotStarted}))

	booked, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)

	res, err := e.mgr.Update(ctx, counselor, booked.Appointment.ID, UpdateRequest{
		Status:         model.StatusCompleted,
		CounselorNotes: "Discussed exam anxiety",
		Goals:          []model.GoalProgress{{GoalID: "g1", Progress: 100}, {GoalID: "missing", Progress: 40}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Appointment.Status)
	assert.Equal(t, "Discussed exam anxiety", res.Appointment.CounselorNotes)
	require.Len(t, res.GoalFailures, 1)
	assert.Equal(t, "missing", res.GoalFailures[0].GoalID)

	goal, err := e.store.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 100, goal.Progress)
	assert.Equal(t, model.GoalCompleted, goal.Status)

	_, err = e.mgr.Update(ctx, counselor, booked.Appointment.ID, UpdateRequest{Status: model.StatusCancelled, CancellationReason: "late"})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCancelRequiresReason(t *testing.T) {
	e := newEnv(t)
	booked, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)

	_, err = e.mgr.Cancel(context.Background(), student("s1"), booked.Appointment.ID, CancelRequest{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = e.mgr.Update(context.Background(), counselor, booked.Appointment.ID, UpdateRequest{Status: model.StatusCancelled, CancellationReason: "  "})
	assert.ErrorIs(t, err, model.ErrValidation)

	got, err := e.mgr.Get(context.Background(), admin, booked.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
}

func TestRoleScoping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	booked, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)
	id := booked.Appointment.ID

	_, err = e.mgr.Get(ctx, student("s2"), id)
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = e.mgr.Update(ctx, other, id, UpdateRequest{Status: model.StatusCompleted, CounselorNotes: "x"})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = e.mgr.Update(ctx, student("s1"), id, UpdateRequest{Status: model.StatusCompleted, CounselorNotes: "x"})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = e.mgr.Update(ctx, counselor, id, UpdateRequest{Status: model.StatusPending})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	assert.ErrorIs(t, e.mgr.Delete(ctx, counselor, id), model.ErrForbidden)
	require.NoError(t, e.mgr.Delete(ctx, admin, id))
	require.NoError(t, e.mgr.Delete(ctx, admin, id))
	_, err = e.mgr.Get(ctx, admin, id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListIsScopedAndSorted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.book(t, student("s1"), "2025-03-11", "09:00")
	require.NoError(t, err)
	_, err = e.book(t, student("s1"), "2025-03-10", "14:00")
	require.NoError(t, err)
	_, err = e.book(t, student("s2"), "2025-03-10", "08:00")
	require.NoError(t, err)

	mine, err := e.mgr.List(ctx, student("s1"), model.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "2025-03-10", mine[0].Date)
	assert.Equal(t, "2025-03-11", mine[1].Date)

	all, err := e.mgr.List(ctx, counselor, model.AppointmentFilter{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "08:00", all[0].Time)

	none, err := e.mgr.List(ctx, other, model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCheckInThenCompleteFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	booked, err := e.book(t, student("s1"), "2025-03-10", "09:00")
	require.NoError(t, err)

	res, err := e.codes.Verify(ctx, booked.Token.Payload)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Appointment.Status)

	done, err := e.mgr.Update(ctx, counselor, booked.Appointment.ID, UpdateRequest{Status: model.StatusCompleted, CounselorNotes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Appointment.Status)
}
