package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
)

func TestMessageCarriesEnvelopeHeaders(t *testing.T) {
	msg := Message(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   "appointment.booked.v1",
		Payload:     []byte(`{"id":"appt-1"}`),
	})

	if msg.Topic != "appointment.booked.v1" {
		t.Fatalf("expected topic from event type, got %q", msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("expected aggregate id as key, got %q", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "appointment.booked.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}
