package outbox

// Event is the envelope written to outbox_events. EventType is also the
// Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
