package notify

import "github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"

// Event types double as Kafka topic names.
const (
	TypeAppointmentBooked     = "appointment.booked.v1"
	TypeAppointmentCancelled  = "appointment.cancelled.v1"
	TypeAppointmentCompleted  = "appointment.completed.v1"
	TypeAppointmentCheckedIn  = "appointment.checked_in.v1"
	TypeNotificationRequested = "notification.requested.v1"
)

// Notice is a message addressed to one counselor.
type Notice struct {
	CounselorID   string `json:"counselor_id"`
	AppointmentID string `json:"appointment_id"`
	Message       string `json:"message"`
	RedirectURL   string `json:"redirect_url"`
}

// Event is what a domain operation reports back. Domain packages never
// perform the effect themselves; the Dispatcher does.
type Event struct {
	Type        string
	Appointment model.Appointment
	Notice      *Notice
}
