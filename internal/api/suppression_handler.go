package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/pkg/httputil"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/service/deliverability"
	"github.com/ignite/delivery-engine/internal/service/suppression"
)

// SuppressionService is the ledger intake used by the HTTP layer.
type SuppressionService interface {
	Unsubscribe(ctx context.Context, address, tenantID string, category domain.Category, source domain.UnsubscribeSource) error
	RecordBounce(ctx context.Context, address string, kind domain.BounceKind, tenantID string) error
	History(ctx context.Context, address string) (*suppression.History, error)
	Import(ctx context.Context, r io.Reader, opts suppression.ImportOptions) (*suppression.ImportResult, error)
}

const maxImportBytes = 256 << 20

// GateChecker answers deliverability questions.
type GateChecker interface {
	Check(ctx context.Context, address, tenantID string, category domain.Category) (deliverability.Decision, error)
}

// SuppressionHandler serves opt-outs, bounce imports and gate lookups.
type SuppressionHandler struct {
	svc  SuppressionService
	gate GateChecker
}

func NewSuppressionHandler(svc SuppressionService, gate GateChecker) *SuppressionHandler {
	return &SuppressionHandler{svc: svc, gate: gate}
}

func (h *SuppressionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/unsubscribes", h.HandleUnsubscribe)
	r.Post("/bounces", h.HandleBounce)
	r.Get("/deliverability", h.HandleCheck)
	r.Post("/suppressions/import", h.HandleImport)
	r.Get("/suppressions/{address}", h.HandleHistory)
}

type unsubscribeRequest struct {
	Address  string                   `json:"address"`
	TenantID string                   `json:"tenant_id"`
	Category domain.Category          `json:"category"`
	Source   domain.UnsubscribeSource `json:"source"`
}

// HandleUnsubscribe records an opt-out. An empty tenant_id opts out of every
// tenant's mail of that category.
func (h *SuppressionHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Category == "" {
		req.Category = domain.CategoryMarketing
	}
	if req.Source == "" {
		req.Source = domain.SourceUnsubscribeLink
	}

	if err := h.svc.Unsubscribe(r.Context(), req.Address, req.TenantID, req.Category, req.Source); err != nil {
		writeLedgerError(w, err)
		return
	}
	httputil.Created(w, map[string]string{"status": "recorded"})
}

type bounceRequest struct {
	Address  string            `json:"address"`
	Kind     domain.BounceKind `json:"kind"`
	TenantID string            `json:"tenant_id"`
}

func (h *SuppressionHandler) HandleBounce(w http.ResponseWriter, r *http.Request) {
	var req bounceRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.svc.RecordBounce(r.Context(), req.Address, req.Kind, req.TenantID); err != nil {
		writeLedgerError(w, err)
		return
	}
	httputil.Created(w, map[string]string{"status": "recorded"})
}

// HandleCheck evaluates the gate without enqueueing anything.
func (h *SuppressionHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	if !domain.ValidAddress(address) {
		httputil.BadRequest(w, "invalid_address", "a valid address is required")
		return
	}
	category := domain.Category(q.Get("category"))
	if category == "" {
		category = domain.CategoryMarketing
	}
	if !category.Valid() {
		httputil.BadRequest(w, "invalid_category", "category must be transactional or marketing")
		return
	}

	d, err := h.gate.Check(r.Context(), address, q.Get("tenant"), category)
	if err != nil {
		httputil.Unavailable(w, err)
		return
	}
	httputil.OK(w, d)
}

func (h *SuppressionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.History(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if hist.Unsubscribes == nil {
		hist.Unsubscribes = []domain.Unsubscribe{}
	}
	if hist.Bounces == nil {
		hist.Bounces = []domain.Bounce{}
	}
	httputil.OK(w, hist)
}

// HandleImport streams a one-address-per-line body into the ledger.
//
//	POST /v1/suppressions/import?type=unsubscribe|hard|soft|complaint&tenant=&category=
func (h *SuppressionHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := suppression.ImportOptions{
		Type:     q.Get("type"),
		TenantID: q.Get("tenant"),
		Category: domain.Category(q.Get("category")),
	}

	res, err := h.svc.Import(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBytes), opts)
	if err != nil {
		if res != nil {
			logger.Warn("suppression import stopped early", "imported", res.Imported, "lines", res.Lines, "error", err)
		}
		writeLedgerError(w, err)
		return
	}
	logger.Info("suppression import complete", "type", opts.Type, "imported", res.Imported, "lines", res.Lines)
	httputil.OK(w, res)
}

// writeLedgerError treats anything that is not a validation failure as a
// storage problem.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, suppression.ErrAddressRequired),
		errors.Is(err, suppression.ErrInvalidKind),
		errors.Is(err, suppression.ErrInvalidCategory):
		writeServiceError(w, err)
	default:
		httputil.Unavailable(w, err)
	}
}
