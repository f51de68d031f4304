package outbox

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change it describes. The Kafka topic name equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// EventTypeMeetingBooked announces a confirmed booking, carrying the invite
// artifacts for the messaging subsystem to deliver.
const EventTypeMeetingBooked = "scheduler.meeting.booked.v1"
