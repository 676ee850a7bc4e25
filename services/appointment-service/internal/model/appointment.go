package model

import "time"

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses have no outgoing edges.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active appointments count against slot capacity.
func (s Status) Active() bool {
	return s != StatusCancelled
}

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Appointment struct {
	ID                 string    `json:"id"`
	StudentID          string    `json:"student_id"`
	CounselorID        string    `json:"counselor_id"`
	Program            string    `json:"program"`
	Date               string    `json:"date"`
	Time               string    `json:"time"`
	DurationMinutes    int       `json:"duration"`
	ConcernType        string    `json:"concern_type"`
	Status             Status    `json:"status"`
	FollowUpRequired   bool      `json:"follow_up_required"`
	SessionNotes       string    `json:"session_notes"`
	CounselorNotes     string    `json:"counselor_notes"`
	CancellationReason string    `json:"cancellation_reason"`
	Goals              []string  `json:"goals"`
	ProgressNotes      string    `json:"progress_notes"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StartsAt resolves the date and time labels in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, a.Date+" "+a.Time, loc)
}

// SlotKey identifies one bookable slot.
type SlotKey struct {
	Date        string
	Time        string
	CounselorID string
}

func (a Appointment) Slot() SlotKey {
	return SlotKey{Date: a.Date, Time: a.Time, CounselorID: a.CounselorID}
}

type AppointmentFilter struct {
	StudentID   string
	CounselorID string
	Program     string
	Date        string
	DateFrom    string
	DateTo      string
	Status      Status
	Limit       int
}
