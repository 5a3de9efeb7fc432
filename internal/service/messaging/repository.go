package messaging

import (
	"context"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/suppression"
)

// Repository defines the data access contract for messages and their
// delivery events.
type Repository interface {
	// GetByID returns ErrNotFound if the message does not exist.
	GetByID(ctx context.Context, id string) (*domain.Message, error)

	// GetByIdempotencyKey returns ErrNotFound if no message was created for
	// the pair.
	GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Message, error)

	// GetByProviderMessageID returns ErrNotFound if no message carries the id.
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.Message, error)

	// Create inserts msg and its created event in one transaction. If a
	// message already exists for (tenant, idempotency key), nothing is
	// written and the existing id is returned with inserted=false.
	Create(ctx context.Context, msg *domain.Message, created *domain.DeliveryEvent) (id string, inserted bool, err error)

	// Transition locks the message row for the duration of one transaction
	// and calls fn with the locked state. When fn returns a non-nil Change,
	// the row update and the event insert commit together with any ledger
	// appends fn made through the writer. A nil Change or an error rolls
	// everything back. duplicate is true when providerEventID is non-empty
	// and already recorded on some delivery event.
	Transition(ctx context.Context, id, providerEventID string, fn TransitionFunc) (applied bool, err error)

	// ClaimDue moves up to limit queued or retry-due soft_bounced messages
	// to processing, appends a processing event for each and returns them.
	// Rows locked by a concurrent claimer are skipped.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Message, error)

	// ListStale returns ids of messages that have been in status since
	// before olderThan.
	ListStale(ctx context.Context, status domain.MessageStatus, olderThan time.Time, limit int) ([]string, error)

	// Events returns the delivery events of a message in applied order.
	Events(ctx context.Context, messageID string) ([]domain.DeliveryEvent, error)
}

// TransitionFunc decides the change for one locked message.
type TransitionFunc func(ctx context.Context, current *domain.Message, duplicate bool, ledger suppression.LedgerWriter) (*Change, error)

// Change is the state persisted by an accepted transition.
type Change struct {
	Message *domain.Message
	Event   *domain.DeliveryEvent
}

// Gatekeeper is the deliverability decision the enqueuer consults.
type Gatekeeper interface {
	IsDeliverable(ctx context.Context, address, tenantID string, category domain.Category) (bool, error)
}
