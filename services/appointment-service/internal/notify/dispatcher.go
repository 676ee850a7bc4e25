package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/outbox"
)

// Sink delivers a notice to a counselor. Delivery is fire-and-forget.
type Sink interface {
	Create(ctx context.Context, n Notice) error
}

// Appender stores integration events for later publication.
type Appender interface {
	Append(ctx context.Context, evt outbox.Event) error
}

// Dispatcher performs the effects of domain events after the write that
// produced them has committed. Failures are logged, never returned.
type Dispatcher struct {
	events Appender
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(events Appender, sink Sink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{events: events, sink: sink, logger: logger, now: time.Now}
}

// AppointmentPayload is the body of every appointment.* event.
type AppointmentPayload struct {
	Appointment model.Appointment `json:"appointment"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range events {
		if d.events != nil {
			body, err := json.Marshal(AppointmentPayload{Appointment: e.Appointment, OccurredAt: d.now().UTC()})
			if err == nil {
				err = d.events.Append(ctx, outbox.Event{
					AggregateType: "appointment",
					AggregateID:   e.Appointment.ID,
					EventType:     e.Type,
					Payload:       body,
				})
			}
			if err != nil {
				d.logger.Error("event not recorded", "event_type", e.Type, "appointment_id", e.Appointment.ID, "err", err)
			}
		}
		if e.Notice != nil && d.sink != nil {
			if err := d.sink.Create(ctx, *e.Notice); err != nil {
				d.logger.Warn("notification dropped", "counselor_id", e.Notice.CounselorID, "err", err)
			}
		}
	}
}
