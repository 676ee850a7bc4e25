package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestHeaderCarrierSetAppendsAndOverwrites(t *testing.T) {
	c := &headerCarrier{headers: []kafka.Header{{Key: HeaderEventID, Value: []byte("e-1")}}}
	c.Set("traceparent", "00-aaaa-bbbb-01")
	c.Set(HeaderEventID, "e-2")

	if got := HeaderValue(c.headers, "traceparent"); got != "00-aaaa-bbbb-01" {
		t.Fatalf("expected traceparent to be appended, got %q", got)
	}
	if got := HeaderValue(c.headers, HeaderEventID); got != "e-2" {
		t.Fatalf("expected event_id overwrite, got %q", got)
	}
	if len(c.headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(c.headers))
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "directory.counselor.assigned.v1", Key: []byte("k-1")})
	if meta.EventID != "k-1" || meta.EventType != "directory.counselor.assigned.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := SplitBrokers(" a:9092, ,b:9092"); len(got) != 2 || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}
