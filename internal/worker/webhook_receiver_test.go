package worker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/pkg/httpretry"
	"github.com/ignite/delivery-engine/internal/service/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []messaging.ProviderEvent
	err    error
}

func (s *recordingSink) HandleProviderEvent(_ context.Context, ev messaging.ProviderEvent) (bool, error) {
	s.events = append(s.events, ev)
	return s.err == nil, s.err
}

func post(t *testing.T, w *WebhookReceiver, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ses", bytes.NewReader(body))
	w.HandleSESWebhook(rec, req)
	return rec
}

func TestWebhookReceiver_AppliesNotification(t *testing.T) {
	sink := &recordingSink{}
	w := NewWebhookReceiver(sink, nil)

	rec := post(t, w, snsBody(t, SNSNotification, "sns-9", sesHardBounce))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.StatusBounced, sink.events[0].Status)
	assert.Equal(t, "sns-9", sink.events[0].ProviderEventID)
	assert.Equal(t, int64(1), w.Stats()["applied"])
}

func TestWebhookReceiver_StorageFailureAsksForRedelivery(t *testing.T) {
	sink := &recordingSink{err: messaging.ErrStorageUnavailable}
	w := NewWebhookReceiver(sink, nil)

	rec := post(t, w, snsBody(t, SNSNotification, "sns-9", sesDelivery))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int64(1), w.Stats()["errors"])
}

func TestWebhookReceiver_UnknownMessageIsAcknowledged(t *testing.T) {
	sink := &recordingSink{err: messaging.ErrNotFound}
	w := NewWebhookReceiver(sink, nil)

	rec := post(t, w, snsBody(t, SNSNotification, "sns-9", sesDelivery))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), w.Stats()["ignored"])
}

func TestWebhookReceiver_IgnoredEventNotForwarded(t *testing.T) {
	sink := &recordingSink{}
	w := NewWebhookReceiver(sink, nil)

	rec := post(t, w, snsBody(t, SNSNotification, "sns-9", sesOpen))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sink.events)
}

func TestWebhookReceiver_ConfirmsSubscription(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookReceiver(&recordingSink{}, httpretry.New(srv.Client(), httpretry.Options{MaxRetries: 1}))
	body := []byte(`{"Type":"SubscriptionConfirmation","MessageId":"c1","TopicArn":"arn:t","SubscribeURL":"` + srv.URL + `/confirm"}`)

	rec := post(t, w, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestWebhookReceiver_RejectsGarbage(t *testing.T) {
	w := NewWebhookReceiver(&recordingSink{err: errors.New("unused")}, nil)
	rec := post(t, w, []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
