package domain

import "time"

// MessageStatus enumerates the lifecycle states of an outbox message.
type MessageStatus string

const (
	StatusQueued      MessageStatus = "queued"
	StatusProcessing  MessageStatus = "processing"
	StatusSent        MessageStatus = "sent"
	StatusDelivered   MessageStatus = "delivered"
	StatusBounced     MessageStatus = "bounced"
	StatusSoftBounced MessageStatus = "soft_bounced"
	StatusComplained  MessageStatus = "complained"
	StatusFailed      MessageStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusSent, StatusDelivered,
		StatusBounced, StatusSoftBounced, StatusComplained, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is accepted from s.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusBounced || s == StatusComplained || s == StatusFailed
}

// Category classifies a message for deliverability policy.
type Category string

const (
	CategoryTransactional Category = "transactional"
	CategoryMarketing     Category = "marketing"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryTransactional || c == CategoryMarketing
}

// Message is a single outbox entry. It is created once by the enqueuer and
// afterwards mutated only by the status state machine.
type Message struct {
	ID             string            `json:"id" db:"id"`
	TenantID       string            `json:"tenant_id" db:"tenant_id"`
	IdempotencyKey string            `json:"idempotency_key" db:"idempotency_key"`
	Recipient      string            `json:"recipient" db:"recipient"`
	FromName       string            `json:"from_name" db:"from_name"`
	FromAddress    string            `json:"from_address" db:"from_address"`
	Subject        string            `json:"subject" db:"subject"`
	Body           string            `json:"body" db:"body"`
	Category       Category          `json:"category" db:"category"`
	Metadata       map[string]string `json:"metadata,omitempty" db:"metadata"`
	Status         MessageStatus     `json:"status" db:"status"`
	AttemptCount   int               `json:"attempt_count" db:"attempt_count"`
	MaxAttempts    int               `json:"max_attempts" db:"max_attempts"`
	NextAttemptAt  *time.Time        `json:"next_attempt_at,omitempty" db:"next_attempt_at"`

	ProviderMessageID *string `json:"provider_message_id,omitempty" db:"provider_message_id"`
	LastErrorCode     *string `json:"last_error_code,omitempty" db:"last_error_code"`
	LastErrorMessage  *string `json:"last_error_message,omitempty" db:"last_error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// IsTerminal returns true if the message is in a final state.
func (m *Message) IsTerminal() bool {
	return m.Status.IsTerminal()
}
