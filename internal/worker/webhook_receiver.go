package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ignite/delivery-engine/internal/pkg/httpretry"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/service/messaging"
)

// EventSink applies normalized provider callbacks.
type EventSink interface {
	HandleProviderEvent(ctx context.Context, ev messaging.ProviderEvent) (bool, error)
}

// WebhookReceiver accepts SES notifications delivered by SNS.
//
// TODO: verify SNS message signatures against SigningCertURL before
// trusting the payload.
type WebhookReceiver struct {
	sink    EventSink
	confirm *httpretry.Client
	log     *logger.Logger

	received int64
	applied  int64
	ignored  int64
	errors   int64
}

// NewWebhookReceiver creates a receiver. confirm is used to visit the
// SubscribeURL of SNS subscription confirmations; nil uses a default
// retrying client.
func NewWebhookReceiver(sink EventSink, confirm *httpretry.Client) *WebhookReceiver {
	if confirm == nil {
		confirm = httpretry.New(nil, httpretry.Options{})
	}
	return &WebhookReceiver{
		sink:    sink,
		confirm: confirm,
		log:     logger.With("component", "webhook_receiver"),
	}
}

// HandleSESWebhook processes one SNS POST. Anything that cannot change
// state is acknowledged with 200 so SNS stops redelivering; storage
// failures answer 503 so SNS retries.
func (w *WebhookReceiver) HandleSESWebhook(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 256<<10))
	if err != nil {
		http.Error(rw, "failed to read body", http.StatusBadRequest)
		return
	}
	env, err := ParseSNSMessage(body)
	if err != nil {
		http.Error(rw, "invalid SNS message", http.StatusBadRequest)
		return
	}
	atomic.AddInt64(&w.received, 1)

	switch env.Type {
	case SNSSubscriptionConfirmation:
		w.confirmSubscription(r.Context(), env)
		rw.WriteHeader(http.StatusOK)
		return
	case SNSNotification:
	default:
		rw.WriteHeader(http.StatusOK)
		return
	}

	ev, err := NormalizeSESEvent(env)
	if err != nil {
		atomic.AddInt64(&w.ignored, 1)
		if !errors.Is(err, ErrIgnoredEvent) {
			w.log.Warn("unparseable ses notification", "sns_message_id", env.MessageID, "error", err)
		}
		rw.WriteHeader(http.StatusOK)
		return
	}

	applied, err := w.sink.HandleProviderEvent(r.Context(), *ev)
	switch {
	case errors.Is(err, messaging.ErrNotFound):
		atomic.AddInt64(&w.ignored, 1)
		w.log.Debug("ses event for unknown message", "provider_message_id", ev.ProviderMessageID)
	case err != nil:
		atomic.AddInt64(&w.errors, 1)
		w.log.Error("apply ses event", "provider_message_id", ev.ProviderMessageID, "error", err)
		http.Error(rw, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	case applied:
		atomic.AddInt64(&w.applied, 1)
	default:
		atomic.AddInt64(&w.ignored, 1)
	}
	rw.WriteHeader(http.StatusOK)
}

func (w *WebhookReceiver) confirmSubscription(ctx context.Context, env *SNSMessage) {
	if env.SubscribeURL == "" {
		w.log.Warn("subscription confirmation without SubscribeURL", "topic", env.TopicArn)
		return
	}
	resp, err := w.confirm.Get(ctx, env.SubscribeURL)
	if err != nil {
		w.log.Error("confirm sns subscription", "topic", env.TopicArn, "error", err)
		return
	}
	resp.Body.Close()
	w.log.Info("sns subscription confirmed", "topic", env.TopicArn, "status", resp.StatusCode)
}

// Stats returns receiver counters.
func (w *WebhookReceiver) Stats() map[string]int64 {
	return map[string]int64{
		"received": atomic.LoadInt64(&w.received),
		"applied":  atomic.LoadInt64(&w.applied),
		"ignored":  atomic.LoadInt64(&w.ignored),
		"errors":   atomic.LoadInt64(&w.errors),
	}
}
