package outbox

// Event is the envelope written to the outbox table. All events share one
// topic; consumers switch on EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
