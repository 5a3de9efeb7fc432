package domain

import "time"

// BounceKind classifies a delivery failure recorded in the ledger.
type BounceKind string

const (
	BounceHard      BounceKind = "hard"
	BounceSoft      BounceKind = "soft"
	BounceComplaint BounceKind = "complaint"
)

// UnsubscribeSource indicates where an opt-out originated.
type UnsubscribeSource string

const (
	SourceUnsubscribeLink UnsubscribeSource = "unsubscribe_link"
	SourceComplaint       UnsubscribeSource = "complaint"
	SourceManual          UnsubscribeSource = "manual"
	SourceImport          UnsubscribeSource = "import"
)

// Unsubscribe is an opt-out entry. A nil TenantID applies to every tenant.
type Unsubscribe struct {
	ID        string            `json:"id" db:"id"`
	Address   string            `json:"address" db:"address"`
	TenantID  *string           `json:"tenant_id" db:"tenant_id"`
	Category  Category          `json:"category" db:"category"`
	Source    UnsubscribeSource `json:"source" db:"source"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Bounce is a delivery-failure entry. Multiple entries per address are
// expected; the deliverability gate counts them.
type Bounce struct {
	ID        string     `json:"id" db:"id"`
	Address   string     `json:"address" db:"address"`
	Kind      BounceKind `json:"kind" db:"kind"`
	TenantID  *string    `json:"tenant_id" db:"tenant_id"`
	MessageID *string    `json:"message_id,omitempty" db:"message_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
