package suppression

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
)

// Recorder builds ledger records and appends them through a LedgerWriter.
// It holds no state besides its clock and is safe for concurrent use.
type Recorder struct {
	now func() time.Time
}

// NewRecorder creates a bounce recorder using the system clock.
func NewRecorder() *Recorder {
	return &Recorder{now: func() time.Time { return time.Now().UTC() }}
}

// RecordBounce appends a bounce record. tenantID and messageID may be empty.
// The error from the writer is returned unchanged so a transactional caller
// can abort.
func (r *Recorder) RecordBounce(ctx context.Context, w LedgerWriter, address string, kind domain.BounceKind, tenantID, messageID string) error {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return ErrAddressRequired
	}
	switch kind {
	case domain.BounceHard, domain.BounceSoft, domain.BounceComplaint:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	return w.AppendBounce(ctx, &domain.Bounce{
		Address:   address,
		Kind:      kind,
		TenantID:  optional(tenantID),
		MessageID: optional(messageID),
		CreatedAt: r.now(),
	})
}

// RecordUnsubscribe appends an opt-out. An empty tenantID records a global
// unsubscribe.
func (r *Recorder) RecordUnsubscribe(ctx context.Context, w LedgerWriter, address, tenantID string, category domain.Category, source domain.UnsubscribeSource) error {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return ErrAddressRequired
	}
	if !category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if source == "" {
		source = domain.SourceManual
	}

	return w.AppendUnsubscribe(ctx, &domain.Unsubscribe{
		Address:   address,
		TenantID:  optional(tenantID),
		Category:  category,
		Source:    source,
		CreatedAt: r.now(),
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
