package outbox

// Event is the domain event envelope written to the outbox table inside the
// transaction that performed the state change. The Kafka topic name equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Topics emitted by the booking service.
const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
	TopicWaitlistOffer        = "booking.waitlist.offer.v1"
)
