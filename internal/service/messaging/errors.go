package messaging

import (
	"errors"
	"fmt"
)

// Sentinel errors for the messaging service layer.
var (
	ErrInvalidAddress        = errors.New("invalid recipient address")
	ErrInvalidCategory       = errors.New("invalid message category")
	ErrInvalidStatus         = errors.New("invalid target status")
	ErrMissingTenant         = errors.New("tenant is required")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrNotFound              = errors.New("message not found")

	// ErrStorageUnavailable means the store could not complete an atomic
	// operation. Nothing was written; the call is safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// storageError classifies a repository failure. Not-found passes through,
// everything else is reported as ErrStorageUnavailable with the cause kept
// in the chain.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
