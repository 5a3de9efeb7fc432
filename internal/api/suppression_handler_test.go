package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/deliverability"
	"github.com/ignite/delivery-engine/internal/service/suppression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unsubCall struct {
	address, tenant string
	category        domain.Category
	source          domain.UnsubscribeSource
}

type stubSuppressions struct {
	unsubs   []unsubCall
	bounces  []domain.BounceKind
	history  *suppression.History
	imported []suppression.ImportOptions
	err      error
}

func (s *stubSuppressions) Unsubscribe(_ context.Context, address, tenantID string, category domain.Category, source domain.UnsubscribeSource) error {
	if s.err != nil {
		return s.err
	}
	s.unsubs = append(s.unsubs, unsubCall{address, tenantID, category, source})
	return nil
}

func (s *stubSuppressions) RecordBounce(_ context.Context, _ string, kind domain.BounceKind, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.bounces = append(s.bounces, kind)
	return nil
}

func (s *stubSuppressions) History(_ context.Context, address string) (*suppression.History, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.history != nil {
		return s.history, nil
	}
	return &suppression.History{Address: address}, nil
}

func (s *stubSuppressions) Import(_ context.Context, r io.Reader, opts suppression.ImportOptions) (*suppression.ImportResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, _ := io.ReadAll(r)
	s.imported = append(s.imported, opts)
	return &suppression.ImportResult{Lines: len(data)}, nil
}

type stubGate struct {
	decision deliverability.Decision
	err      error
	tenant   string
	category domain.Category
}

func (g *stubGate) Check(_ context.Context, _, tenantID string, category domain.Category) (deliverability.Decision, error) {
	g.tenant, g.category = tenantID, category
	return g.decision, g.err
}

func TestHandleUnsubscribe_Defaults(t *testing.T) {
	sup := &stubSuppressions{}
	rec := do(t, newTestRouter(nil, sup, nil), http.MethodPost, "/v1/unsubscribes", `{"address":"a@example.com"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, sup.unsubs, 1)
	assert.Equal(t, "", sup.unsubs[0].tenant)
	assert.Equal(t, domain.CategoryMarketing, sup.unsubs[0].category)
	assert.Equal(t, domain.SourceUnsubscribeLink, sup.unsubs[0].source)
}

func TestHandleUnsubscribe_Errors(t *testing.T) {
	sup := &stubSuppressions{err: suppression.ErrAddressRequired}
	rec := do(t, newTestRouter(nil, sup, nil), http.MethodPost, "/v1/unsubscribes", `{"address":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sup.err = errors.New("connection reset")
	rec = do(t, newTestRouter(nil, sup, nil), http.MethodPost, "/v1/unsubscribes", `{"address":"a@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleBounce(t *testing.T) {
	sup := &stubSuppressions{}
	rec := do(t, newTestRouter(nil, sup, nil), http.MethodPost, "/v1/bounces", `{"address":"a@example.com","kind":"hard"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []domain.BounceKind{domain.BounceHard}, sup.bounces)

	sup.err = suppression.ErrInvalidKind
	rec = do(t, newTestRouter(nil, sup, nil), http.MethodPost, "/v1/bounces", `{"address":"a@example.com","kind":"weird"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_kind", decodeBody(t, rec)["code"])
}

func TestHandleCheck(t *testing.T) {
	gate := &stubGate{decision: deliverability.Decision{Reason: deliverability.ReasonHardBounced, HardBounces: 3}}
	h := newTestRouter(nil, nil, gate)

	rec := do(t, h, http.MethodGet, "/v1/deliverability?address=a@example.com&tenant=t1&category=transactional", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["deliverable"])
	assert.Equal(t, "hard_bounce_threshold", body["reason"])
	assert.Equal(t, "t1", gate.tenant)
	assert.Equal(t, domain.CategoryTransactional, gate.category)

	rec = do(t, h, http.MethodGet, "/v1/deliverability?address=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/deliverability?address=a@example.com&category=promo", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	gate.err = errors.New("timeout")
	rec = do(t, h, http.MethodGet, "/v1/deliverability?address=a@example.com", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.CategoryMarketing, gate.category)
}

func TestHandleHistory(t *testing.T) {
	sup := &stubSuppressions{history: &suppression.History{Address: "a@example.com", HardBounces: 2}}
	rec := do(t, newTestRouter(nil, sup, nil), http.MethodGet, "/v1/suppressions/a@example.com", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["hard_bounces"])
	assert.Equal(t, []any{}, body["bounces"])
}

func TestHandleImport(t *testing.T) {
	sup := &stubSuppressions{}
	h := newTestRouter(nil, sup, nil)

	rec := do(t, h, http.MethodPost, "/v1/suppressions/import?type=hard&tenant=t1", "a@example.com\n")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sup.imported, 1)
	assert.Equal(t, "hard", sup.imported[0].Type)
	assert.Equal(t, "t1", sup.imported[0].TenantID)

	sup.err = suppression.ErrInvalidKind
	rec = do(t, h, http.MethodPost, "/v1/suppressions/import?type=blocked", "a@example.com\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
