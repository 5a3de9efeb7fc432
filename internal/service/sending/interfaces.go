// Package sending defines how the dispatcher hands a claimed message to an
// email provider and how provider failures are classified.
//
// Each provider adapter implements Sender. A failure is either transient,
// in which case the message is soft-bounced and retried on the backoff
// schedule, or permanent, in which case it fails immediately.
package sending

import (
	"context"

	"github.com/ignite/delivery-engine/internal/domain"
)

// Result is a provider's acceptance of a message.
type Result struct {
	// ProviderMessageID is the id later callbacks will reference.
	ProviderMessageID string
	Provider          string
}

// Sender delivers one message. Implementations must be safe for concurrent
// use. A returned error wrapping ErrPermanent means retrying cannot succeed.
type Sender interface {
	Send(ctx context.Context, msg *domain.Message) (*Result, error)
	Name() string
}
