// Package memstore is an in-process implementation of the appointment and
// check-in stores. It enforces the same conditional-write rules as the
// Postgres repositories under a single mutex and backs STORE_DRIVER=memory
// and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

type Store struct {
	mu           sync.Mutex
	appointments map[string]model.Appointment
	slots        map[model.SlotKey]model.TimeSlot
	tokens       map[string]model.CheckInToken
	counselors   map[string]model.ProgramCounselor
	goals        map[string]model.Goal
	now          func() time.Time
}

func New() *Store {
	return &Store{
		appointments: make(map[string]model.Appointment),
		slots:        make(map[model.SlotKey]model.TimeSlot),
		tokens:       make(map[string]model.CheckInToken),
		counselors:   make(map[string]model.ProgramCounselor),
		goals:        make(map[string]model.Goal),
		now:          time.Now,
	}
}

// CreateAppointment inserts appt and its token if the slot still has room and
// the student holds no other live booking at the same date and time.
func (s *Store) CreateAppointment(_ context.Context, appt model.Appointment, tok model.CheckInToken, defaultCapacity int) error {
	const op = "memstore.CreateAppointment"
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[appt.ID]; ok {
		return model.E(op, model.ErrPersistence, "appointment id already exists")
	}
	occupancy := 0
	for _, a := range s.appointments {
		if !a.Status.Active() || a.Date != appt.Date || a.Time != appt.Time {
			continue
		}
		if a.StudentID == appt.StudentID {
			return model.E(op, model.ErrDuplicateBooking, "student already booked this slot")
		}
		if a.CounselorID == appt.CounselorID {
			occupancy++
		}
	}
	var override *model.TimeSlot
	if ts, ok := s.slots[appt.Slot()]; ok {
		override = &ts
	}
	if !availability.SlotOpen(override, occupancy, defaultCapacity) {
		return model.E(op, model.ErrCapacity, "slot is full or blocked")
	}

	now := s.now()
	appt.CreatedAt, appt.UpdatedAt = now, now
	s.appointments[appt.ID] = clone(appt)
	if tok.ID != "" {
		s.tokens[tok.ID] = tok
	}
	return nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, model.E("memstore.GetAppointment", model.ErrNotFound, "appointment "+id)
	}
	return clone(a), nil
}

func (s *Store) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Appointment
	for _, a := range s.appointments {
		if matches(a, f) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(a model.Appointment, f model.AppointmentFilter) bool {
	switch {
	case f.StudentID != "" && a.StudentID != f.StudentID:
		return false
	case f.CounselorID != "" && a.CounselorID != f.CounselorID:
		return false
	case f.Program != "" && a.Program != f.Program:
		return false
	case f.Date != "" && a.Date != f.Date:
		return false
	case f.DateFrom != "" && a.Date < f.DateFrom:
		return false
	case f.DateTo != "" && a.Date > f.DateTo:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	}
	return true
}

// UpdateAppointment replaces the stored record only while its status still
// equals expected.
func (s *Store) UpdateAppointment(_ context.Context, appt model.Appointment, expected model.Status) (model.Appointment, error) {
	const op = "memstore.UpdateAppointment"
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.appointments[appt.ID]
	if !ok {
		return model.Appointment{}, model.E(op, model.ErrNotFound, "appointment "+appt.ID)
	}
	if cur.Status != expected {
		return model.Appointment{}, model.E(op, model.ErrAlreadyProcessed, "appointment changed to "+string(cur.Status))
	}
	appt.CreatedAt = cur.CreatedAt
	appt.UpdatedAt = s.now()
	s.appointments[appt.ID] = clone(appt)
	return clone(appt), nil
}

func (s *Store) DeleteAppointment(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return false, nil
	}
	delete(s.appointments, id)
	for tid, t := range s.tokens {
		if t.AppointmentID == id {
			delete(s.tokens, tid)
		}
	}
	return true, nil
}

func (s *Store) Occupancy(_ context.Context, date, counselorID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int)
	for _, a := range s.appointments {
		if a.Status.Active() && a.Date == date && a.CounselorID == counselorID {
			out[a.Time]++
		}
	}
	return out, nil
}

func (s *Store) ListTimeSlots(_ context.Context, date, counselorID string) ([]model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.TimeSlot
	for k, ts := range s.slots {
		if k.Date == date && (counselorID == "" || k.CounselorID == counselorID) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CounselorID < out[j].CounselorID
	})
	return out, nil
}

func (s *Store) UpsertTimeSlot(_ context.Context, ts model.TimeSlot) (model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts.UpdatedAt = s.now()
	s.slots[ts.Key()] = ts
	return ts, nil
}

// FirstCounselor returns the earliest active assignment for program.
func (s *Store) FirstCounselor(_ context.Context, program string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.ProgramCounselor
	for _, pc := range s.counselors {
		if pc.Program != program || !pc.Active {
			continue
		}
		if best == nil || pc.AssignedAt.Before(best.AssignedAt) ||
			(pc.AssignedAt.Equal(best.AssignedAt) && pc.CounselorID < best.CounselorID) {
			best = &pc
		}
	}
	if best == nil {
		return "", model.E("memstore.FirstCounselor", model.ErrNotFound, "no counselor for "+program)
	}
	return best.CounselorID, nil
}

func (s *Store) UpsertProgramCounselor(_ context.Context, pc model.ProgramCounselor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pc.Program + "|" + pc.CounselorID
	// An existing pair keeps its original assignment time; only active changes.
	if cur, ok := s.counselors[key]; ok {
		pc.AssignedAt = cur.AssignedAt
	}
	if pc.AssignedAt.IsZero() {
		pc.AssignedAt = s.now()
	}
	s.counselors[key] = pc
	return nil
}

func (s *Store) PutGoal(_ context.Context, g model.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
	return nil
}

func (s *Store) GetGoal(_ context.Context, id string) (model.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return model.Goal{}, model.E("memstore.GetGoal", model.ErrNotFound, "goal "+id)
	}
	return g, nil
}

func (s *Store) UpdateGoalProgress(_ context.Context, p model.GoalProgress) (model.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[p.GoalID]
	if !ok {
		return model.Goal{}, model.E("memstore.UpdateGoalProgress", model.ErrNotFound, "goal "+p.GoalID)
	}
	g.Progress = p.Progress
	g.Status = model.StatusForProgress(p.Progress)
	s.goals[g.ID] = g
	return g, nil
}

func (s *Store) CreateToken(_ context.Context, tok model.CheckInToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[tok.AppointmentID]; !ok {
		return model.E("memstore.CreateToken", model.ErrNotFound, "appointment "+tok.AppointmentID)
	}
	s.tokens[tok.ID] = tok
	return nil
}

func (s *Store) TokenByNonce(_ context.Context, nonce string) (model.CheckInToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Nonce == nonce {
			return t, nil
		}
	}
	return model.CheckInToken{}, model.E("memstore.TokenByNonce", model.ErrNotFound, "token")
}

// TokenForAppointment returns the newest token of an appointment.
func (s *Store) TokenForAppointment(_ context.Context, appointmentID string) (model.CheckInToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out model.CheckInToken
	for _, t := range s.tokens {
		if t.AppointmentID == appointmentID && (out.ID == "" || t.CreatedAt.After(out.CreatedAt)) {
			out = t
		}
	}
	if out.ID == "" {
		return model.CheckInToken{}, model.E("memstore.TokenForAppointment", model.ErrNotFound, "no token for "+appointmentID)
	}
	return out, nil
}

// Redeem marks the token scanned and the appointment Pending, or changes
// nothing.
func (s *Store) Redeem(_ context.Context, tokenID, appointmentID string, at time.Time) (model.Appointment, error) {
	const op = "memstore.Redeem"
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenID]
	if !ok || tok.Status != model.TokenGenerated {
		return model.Appointment{}, model.E(op, model.ErrAlreadyUsedOrInvalid, "token already scanned")
	}
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return model.Appointment{}, model.E(op, model.ErrInvalidToken, "appointment no longer exists")
	}
	if appt.Status != model.StatusScheduled {
		return model.Appointment{}, model.E(op, model.ErrAlreadyProcessed, "appointment is "+string(appt.Status))
	}

	tok.Status = model.TokenScanned
	tok.ScannedAt = &at
	s.tokens[tokenID] = tok
	appt.Status = model.StatusPending
	appt.UpdatedAt = at
	s.appointments[appointmentID] = appt
	return clone(appt), nil
}

func clone(a model.Appointment) model.Appointment {
	if a.Goals != nil {
		a.Goals = append([]string(nil), a.Goals...)
	}
	return a
}
