package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/outbox"
)

// OutboxSink hands notices to the notification service through the outbox.
type OutboxSink struct {
	events Appender
}

func NewOutboxSink(events Appender) *OutboxSink {
	return &OutboxSink{events: events}
}

func (s *OutboxSink) Create(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.events.Append(ctx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   n.CounselorID,
		EventType:     TypeNotificationRequested,
		Payload:       body,
	})
}

// LogSink only logs. It backs the in-memory deployment.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Create(_ context.Context, n Notice) error {
	s.logger.Info("counselor notification", "counselor_id", n.CounselorID, "appointment_id", n.AppointmentID,
		"message", n.Message, "redirect_url", n.RedirectURL)
	return nil
}
