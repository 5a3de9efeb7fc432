package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/pkg/httputil"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/service/messaging"
)

// MessageService is the part of messaging.Service the HTTP layer uses.
type MessageService interface {
	Enqueue(ctx context.Context, req messaging.EnqueueRequest) (messaging.EnqueueResult, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	Events(ctx context.Context, id string) ([]domain.DeliveryEvent, error)
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, opts messaging.UpdateOptions) (bool, error)
	HandleProviderEvent(ctx context.Context, ev messaging.ProviderEvent) (bool, error)
}

// MessageHandler serves message intake and status callbacks.
type MessageHandler struct {
	svc MessageService
}

func NewMessageHandler(svc MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// RegisterRoutes mounts the message routes on r.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.HandleEnqueue)
	r.Get("/messages/{id}", h.HandleGet)
	r.Get("/messages/{id}/events", h.HandleEvents)
	r.Post("/messages/{id}/status", h.HandleUpdateStatus)
	r.Post("/events", h.HandleProviderEvent)
}

type enqueueResponse struct {
	MessageID  *string `json:"message_id"`
	Created    bool    `json:"created"`
	Suppressed bool    `json:"suppressed"`
}

// HandleEnqueue answers 201 for a new message, 200 when the idempotency key
// was already used and 202 when the recipient is suppressed.
func (h *MessageHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req messaging.EnqueueRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch {
	case res.Suppressed():
		logger.Info("enqueue suppressed", "tenant", req.TenantID, "category", req.Category)
		httputil.Accepted(w, enqueueResponse{Suppressed: true})
	case res.Created:
		httputil.Created(w, enqueueResponse{MessageID: &res.MessageID, Created: true})
	default:
		httputil.OK(w, enqueueResponse{MessageID: &res.MessageID})
	}
}

func (h *MessageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, msg)
}

func (h *MessageHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []domain.DeliveryEvent{}
	}
	httputil.OK(w, map[string]any{"events": events, "total": len(events)})
}

type statusRequest struct {
	Status            domain.MessageStatus `json:"status"`
	ProviderMessageID string               `json:"provider_message_id"`
	ProviderEventID   string               `json:"provider_event_id"`
	ErrorCode         string               `json:"error_code"`
	ErrorMessage      string               `json:"error_message"`
}

type transitionResponse struct {
	Applied bool `json:"applied"`
}

// HandleUpdateStatus applies a transition to one message. A rejected or
// duplicate transition is still a 200 with applied=false.
func (h *MessageHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	applied, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, messaging.UpdateOptions{
		ProviderMessageID: req.ProviderMessageID,
		ProviderEventID:   req.ProviderEventID,
		ErrorCode:         req.ErrorCode,
		ErrorMessage:      req.ErrorMessage,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, transitionResponse{Applied: applied})
}

func (h *MessageHandler) HandleProviderEvent(w http.ResponseWriter, r *http.Request) {
	var ev messaging.ProviderEvent
	if !httputil.Decode(w, r, &ev) {
		return
	}
	if ev.MessageID == "" && ev.ProviderMessageID == "" {
		httputil.BadRequest(w, "missing_message_ref", "message_id or provider_message_id is required")
		return
	}

	applied, err := h.svc.HandleProviderEvent(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, transitionResponse{Applied: applied})
}
