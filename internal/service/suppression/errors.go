package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrAddressRequired = errors.New("address is required")
	ErrInvalidKind     = errors.New("invalid bounce kind")
	ErrInvalidCategory = errors.New("invalid message category")
)
