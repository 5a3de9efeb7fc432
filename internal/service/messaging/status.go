package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/suppression"
)

// UpdateStatus applies one transition to the message. It returns
// applied=false without changing anything when the message is terminal,
// when opts.ProviderEventID was already recorded, or when the current status
// does not accept newStatus.
//
// A soft bounce schedules the next attempt at now + base*2^attempt_count, or
// routes the message to failed once attempt_count reaches max_attempts. A
// bounce or complaint appends to the suppression ledger in the same
// transaction; if that append fails the whole transition fails.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus domain.MessageStatus, opts UpdateOptions) (bool, error) {
	return s.transition(ctx, id, newStatus, opts, nil)
}

// transition applies newStatus under the row lock. A non-nil precondition
// is evaluated against the locked row; when it returns false nothing
// changes.
func (s *Service) transition(ctx context.Context, id string, newStatus domain.MessageStatus, opts UpdateOptions, precondition func(*domain.Message) bool) (bool, error) {
	if !newStatus.Valid() || newStatus == domain.StatusQueued {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	if id == "" {
		return false, ErrNotFound
	}

	applied, err := s.repo.Transition(ctx, id, opts.ProviderEventID,
		func(ctx context.Context, cur *domain.Message, duplicate bool, ledger suppression.LedgerWriter) (*Change, error) {
			switch {
			case precondition != nil && !precondition(cur):
				s.log.Debug("transition skipped: row changed since it was read",
					"message_id", id, "status", cur.Status, "requested", newStatus)
				return nil, nil
			case cur.IsTerminal():
				s.log.Debug("transition ignored: terminal",
					"message_id", id, "status", cur.Status, "requested", newStatus)
				return nil, nil
			case duplicate:
				s.log.Debug("transition ignored: duplicate provider event",
					"message_id", id, "provider_event_id", opts.ProviderEventID)
				return nil, nil
			case !CanTransition(cur.Status, newStatus):
				s.log.Warn("transition rejected",
					"message_id", id, "from", cur.Status, "to", newStatus)
				return nil, nil
			}

			now := s.now()
			next := advance(*cur, newStatus, opts, now, s.cfg.BackoffBase)

			if err := s.recordSideEffects(ctx, ledger, &next); err != nil {
				return nil, err
			}

			return &Change{
				Message: &next,
				Event: &domain.DeliveryEvent{
					MessageID:         id,
					Type:              domain.EventTypeFor(next.Status),
					ProviderEventID:   opts.ProviderEventID,
					ProviderTimestamp: opts.ProviderTimestamp,
					CreatedAt:         now,
				},
			}, nil
		})
	if err != nil {
		return false, storageError("update status", err)
	}
	return applied, nil
}

// recordSideEffects is the bounce recorder hook of the state machine.
func (s *Service) recordSideEffects(ctx context.Context, ledger suppression.LedgerWriter, m *domain.Message) error {
	switch m.Status {
	case domain.StatusBounced:
		if err := s.recorder.RecordBounce(ctx, ledger, m.Recipient, domain.BounceHard, m.TenantID, m.ID); err != nil {
			return fmt.Errorf("record hard bounce: %w", err)
		}
	case domain.StatusComplained:
		if err := s.recorder.RecordBounce(ctx, ledger, m.Recipient, domain.BounceComplaint, m.TenantID, m.ID); err != nil {
			return fmt.Errorf("record complaint: %w", err)
		}
		if s.cfg.ComplaintUnsubscribes {
			err := s.recorder.RecordUnsubscribe(ctx, ledger, m.Recipient, m.TenantID,
				domain.CategoryMarketing, domain.SourceComplaint)
			if err != nil {
				return fmt.Errorf("record complaint unsubscribe: %w", err)
			}
		}
	}
	return nil
}

// ProviderEvent is a normalized delivery callback. Either MessageID or
// ProviderMessageID identifies the message.
type ProviderEvent struct {
	ProviderEventID   string               `json:"provider_event_id"`
	MessageID         string               `json:"message_id,omitempty"`
	ProviderMessageID string               `json:"provider_message_id,omitempty"`
	Status            domain.MessageStatus `json:"status"`
	ErrorCode         string               `json:"error_code,omitempty"`
	ErrorMessage      string               `json:"error_message,omitempty"`
	Timestamp         *time.Time           `json:"timestamp,omitempty"`
}

// HandleProviderEvent resolves the message referenced by ev and applies the
// transition it reports.
func (s *Service) HandleProviderEvent(ctx context.Context, ev ProviderEvent) (bool, error) {
	id := ev.MessageID
	if id == "" {
		if ev.ProviderMessageID == "" {
			return false, ErrNotFound
		}
		msg, err := s.repo.GetByProviderMessageID(ctx, ev.ProviderMessageID)
		if err != nil {
			return false, storageError("resolve provider message id", err)
		}
		id = msg.ID
	}

	return s.UpdateStatus(ctx, id, ev.Status, UpdateOptions{
		ProviderMessageID: ev.ProviderMessageID,
		ProviderEventID:   ev.ProviderEventID,
		ErrorCode:         ev.ErrorCode,
		ErrorMessage:      ev.ErrorMessage,
		ProviderTimestamp: ev.Timestamp,
	})
}

// Get returns a message by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get message", err)
	}
	return msg, nil
}

// Events returns the delivery events of a message in applied order.
func (s *Service) Events(ctx context.Context, id string) ([]domain.DeliveryEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.Events(ctx, id)
	if err != nil {
		return nil, storageError("list events", err)
	}
	return events, nil
}

// ClaimDue hands up to limit dispatchable messages to the caller, moving
// them to processing.
func (s *Service) ClaimDue(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	msgs, err := s.repo.ClaimDue(ctx, s.now(), limit)
	if err != nil {
		return nil, storageError("claim due", err)
	}
	return msgs, nil
}

// StaleClaimCode is the error code recorded when a claim is abandoned.
const StaleClaimCode = "stale_claim"

// RecoverStale soft-bounces messages that have sat in processing longer
// than staleAge, so a crashed dispatcher's claims re-enter the retry
// schedule and consume attempt budget. It returns the number recovered.
//
// The candidates are listed without locks, so each one is re-checked under
// its row lock: a message the dispatcher has since moved on (sent, failed,
// re-claimed) is left alone.
func (s *Service) RecoverStale(ctx context.Context, staleAge time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-staleAge)
	ids, err := s.repo.ListStale(ctx, domain.StatusProcessing, cutoff, limit)
	if err != nil {
		return 0, storageError("list stale", err)
	}

	stillStale := func(cur *domain.Message) bool {
		return cur.Status == domain.StatusProcessing && cur.UpdatedAt.Before(cutoff)
	}

	recovered := 0
	for _, id := range ids {
		applied, err := s.transition(ctx, id, domain.StatusSoftBounced, UpdateOptions{
			ErrorCode:    StaleClaimCode,
			ErrorMessage: fmt.Sprintf("claim older than %s", staleAge),
		}, stillStale)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return recovered, err
		}
		if applied {
			recovered++
		}
	}
	return recovered, nil
}
