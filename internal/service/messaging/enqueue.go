package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/delivery-engine/internal/domain"
)

// EnqueueRequest is a single logical send.
type EnqueueRequest struct {
	TenantID       string            `json:"tenant_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Recipient      string            `json:"recipient"`
	FromName       string            `json:"from_name"`
	FromAddress    string            `json:"from_address"`
	Subject        string            `json:"subject"`
	Body           string            `json:"body"`
	Category       domain.Category   `json:"category"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// MaxAttempts overrides the configured retry budget when positive.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// EnqueueResult reports the outcome of Enqueue. MessageID is empty when the
// recipient was suppressed.
type EnqueueResult struct {
	MessageID string `json:"message_id"`
	Created   bool   `json:"created"`
}

// Suppressed is true when the gate blocked the send and nothing was stored.
func (r EnqueueResult) Suppressed() bool { return r.MessageID == "" }

func (r EnqueueRequest) validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return ErrMissingTenant
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return ErrMissingIdempotencyKey
	}
	if !domain.ValidAddress(strings.TrimSpace(r.Recipient)) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, r.Recipient)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	return nil
}

// Enqueue creates the message for req, or returns the one already created
// under the same tenant and idempotency key. The original content always
// wins; a later payload under the same key is ignored.
//
// A suppressed recipient is not an error: the result has an empty
// MessageID and Created=false, and nothing is persisted.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	if err := req.validate(); err != nil {
		return EnqueueResult{}, err
	}

	existing, err := s.repo.GetByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
	switch {
	case err == nil:
		return EnqueueResult{MessageID: existing.ID}, nil
	case !errors.Is(err, ErrNotFound):
		return EnqueueResult{}, storageError("lookup idempotency key", err)
	}

	recipient := strings.TrimSpace(req.Recipient)
	ok, err := s.gate.IsDeliverable(ctx, recipient, req.TenantID, req.Category)
	if err != nil {
		return EnqueueResult{}, storageError("deliverability check", err)
	}
	if !ok {
		s.log.Info("send suppressed",
			"tenant", req.TenantID, "recipient", recipient, "category", req.Category)
		return EnqueueResult{}, nil
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttempts
	}
	now := s.now()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		TenantID:       req.TenantID,
		IdempotencyKey: req.IdempotencyKey,
		Recipient:      recipient,
		FromName:       req.FromName,
		FromAddress:    req.FromAddress,
		Subject:        req.Subject,
		Body:           req.Body,
		Category:       req.Category,
		Metadata:       req.Metadata,
		Status:         domain.StatusQueued,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created := &domain.DeliveryEvent{
		MessageID: msg.ID,
		Type:      domain.EventCreated,
		CreatedAt: now,
	}

	id, inserted, err := s.repo.Create(ctx, msg, created)
	if err != nil {
		return EnqueueResult{}, storageError("create message", err)
	}
	if !inserted {
		// A concurrent duplicate won the insert.
		return EnqueueResult{MessageID: id}, nil
	}

	s.log.Debug("message enqueued", "message_id", id, "tenant", req.TenantID, "category", req.Category)
	return EnqueueResult{MessageID: id, Created: true}, nil
}
