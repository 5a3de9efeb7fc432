package api

import (
	"errors"
	"net/http"

	"github.com/ignite/delivery-engine/internal/pkg/httputil"
	"github.com/ignite/delivery-engine/internal/service/messaging"
	"github.com/ignite/delivery-engine/internal/service/suppression"
)

var badRequestCodes = []struct {
	err  error
	code string
}{
	{messaging.ErrInvalidAddress, "invalid_address"},
	{messaging.ErrInvalidCategory, "invalid_category"},
	{messaging.ErrInvalidStatus, "invalid_status"},
	{messaging.ErrMissingTenant, "missing_tenant"},
	{messaging.ErrMissingIdempotencyKey, "missing_idempotency_key"},
	{suppression.ErrAddressRequired, "invalid_address"},
	{suppression.ErrInvalidKind, "invalid_kind"},
	{suppression.ErrInvalidCategory, "invalid_category"},
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	for _, bc := range badRequestCodes {
		if errors.Is(err, bc.err) {
			httputil.BadRequest(w, bc.code, err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, messaging.ErrNotFound):
		httputil.NotFound(w, "message not found")
	case errors.Is(err, messaging.ErrStorageUnavailable):
		httputil.Unavailable(w, err)
	default:
		httputil.InternalError(w, err)
	}
}
