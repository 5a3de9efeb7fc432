package suppression

import (
	"context"

	"github.com/ignite/delivery-engine/internal/domain"
)

// LedgerReader answers the aggregate questions the deliverability gate asks.
// Addresses passed in are already normalized.
type LedgerReader interface {
	// CountBounces returns the number of bounce records of the given kind for
	// the address, summed across every tenant.
	CountBounces(ctx context.Context, address string, kind domain.BounceKind) (int, error)

	// HasUnsubscribe returns true if an unsubscribe for the category exists
	// whose tenant is either NULL (global) or equal to tenantID.
	HasUnsubscribe(ctx context.Context, address, tenantID string, category domain.Category) (bool, error)
}

// LedgerWriter appends records. Implementations may be bound to an open
// transaction so the append commits or rolls back with it.
type LedgerWriter interface {
	AppendBounce(ctx context.Context, b *domain.Bounce) error
	AppendUnsubscribe(ctx context.Context, u *domain.Unsubscribe) error
}

// Repository is the full data access contract for the ledger.
type Repository interface {
	LedgerReader
	LedgerWriter

	// History returns every record for the address, oldest first.
	History(ctx context.Context, address string) ([]domain.Unsubscribe, []domain.Bounce, error)
}
