package messaging

import (
	"math"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
)

// transitions lists the targets each non-terminal status accepts. Outcomes
// are accepted from processing as well as from sent: the dispatcher records
// soft bounces and failures straight from processing, and callers that name
// the message by id may report an outcome before sent is written. Callbacks
// that only carry a provider message id cannot be resolved until sent has
// stored that id.
var transitions = map[domain.MessageStatus][]domain.MessageStatus{
	domain.StatusQueued: {
		domain.StatusProcessing, domain.StatusSent, domain.StatusSoftBounced,
		domain.StatusBounced, domain.StatusFailed,
	},
	domain.StatusProcessing: {
		domain.StatusSent, domain.StatusDelivered, domain.StatusBounced,
		domain.StatusSoftBounced, domain.StatusComplained, domain.StatusFailed,
	},
	domain.StatusSent: {
		domain.StatusDelivered, domain.StatusBounced, domain.StatusSoftBounced,
		domain.StatusComplained, domain.StatusFailed,
	},
	domain.StatusSoftBounced: {
		domain.StatusProcessing, domain.StatusSent, domain.StatusDelivered,
		domain.StatusBounced, domain.StatusSoftBounced, domain.StatusComplained,
		domain.StatusFailed,
	},
}

// CanTransition reports whether a message in from accepts to.
func CanTransition(from, to domain.MessageStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const maxBackoffExponent = 30

// Backoff returns base * 2^attempt, saturating at the largest Duration.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	factor := time.Duration(int64(1) << uint(attempt))
	if base > time.Duration(math.MaxInt64)/factor {
		return time.Duration(math.MaxInt64)
	}
	return base * factor
}

// UpdateOptions carries the optional fields of a status update.
type UpdateOptions struct {
	ProviderMessageID string
	ProviderEventID   string
	ErrorCode         string
	ErrorMessage      string
	ProviderTimestamp *time.Time
}

// advance computes the message state after entering to. The caller has
// already checked CanTransition.
func advance(cur domain.Message, to domain.MessageStatus, opts UpdateOptions, now time.Time, backoffBase time.Duration) domain.Message {
	next := cur

	// A dispatch attempt concludes when the message leaves queued or
	// processing for anything other than a (re)claim.
	if (cur.Status == domain.StatusQueued || cur.Status == domain.StatusProcessing) && to != domain.StatusProcessing {
		next.AttemptCount++
	}

	next.Status = to
	next.NextAttemptAt = nil
	next.UpdatedAt = now

	switch to {
	case domain.StatusSent:
		next.SentAt = &now
	case domain.StatusDelivered:
		next.DeliveredAt = &now
	case domain.StatusSoftBounced:
		if next.AttemptCount >= next.MaxAttempts {
			next.Status = domain.StatusFailed
			break
		}
		at := now.Add(Backoff(next.AttemptCount, backoffBase))
		next.NextAttemptAt = &at
	}

	if opts.ProviderMessageID != "" {
		pmid := opts.ProviderMessageID
		next.ProviderMessageID = &pmid
	}
	if opts.ErrorCode != "" {
		code := opts.ErrorCode
		next.LastErrorCode = &code
	}
	if opts.ErrorMessage != "" {
		msg := opts.ErrorMessage
		next.LastErrorMessage = &msg
	}
	return next
}
