package model

import "time"

// TimeSlot is an explicit override for one slot. Without an override a slot
// has the default capacity and is available.
type TimeSlot struct {
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	CounselorID string    `json:"counselor_id"`
	Program     string    `json:"program"`
	MaxCapacity int       `json:"max_capacity"`
	IsAvailable bool      `json:"is_available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t TimeSlot) Key() SlotKey {
	return SlotKey{Date: t.Date, Time: t.Time, CounselorID: t.CounselorID}
}

// EffectiveCapacity applies the override to the default.
func (t *TimeSlot) EffectiveCapacity(defaultCapacity int) int {
	if t == nil {
		return defaultCapacity
	}
	if !t.IsAvailable {
		return 0
	}
	if t.MaxCapacity > 0 {
		return t.MaxCapacity
	}
	return defaultCapacity
}

// ProgramCounselor maps a counselor to the academic program they serve.
type ProgramCounselor struct {
	CounselorID string    `json:"counselor_id"`
	Program     string    `json:"program"`
	Active      bool      `json:"active"`
	AssignedAt  time.Time `json:"assigned_at"`
}
