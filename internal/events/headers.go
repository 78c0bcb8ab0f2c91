package events

// Message headers set next to the encoded envelope.
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
	HeaderProducer  = "producer"

	// Set on dead-lettered messages.
	HeaderDeadLetterReason = "x-dead-letter-reason"
	HeaderOriginalTopic    = "x-original-topic"
	HeaderAttempts         = "x-attempts"
)
