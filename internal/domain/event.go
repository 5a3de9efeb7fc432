package domain

import "time"

// EventType mirrors the status a message entered, plus the synthetic
// "created" event appended at enqueue time.
type EventType string

// EventCreated is recorded once, atomically with the message row.
const EventCreated EventType = "created"

// EventTypeFor returns the event type recorded when a message enters s.
func EventTypeFor(s MessageStatus) EventType {
	return EventType(s)
}

// DeliveryEvent is an immutable record of one accepted transition.
type DeliveryEvent struct {
	ID                int64      `json:"id" db:"id"`
	MessageID         string     `json:"message_id" db:"message_id"`
	Type              EventType  `json:"type" db:"event_type"`
	ProviderEventID   string     `json:"provider_event_id,omitempty" db:"provider_event_id"`
	ProviderTimestamp *time.Time `json:"provider_timestamp,omitempty" db:"provider_timestamp"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}
