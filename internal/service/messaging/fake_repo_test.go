package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
)

// memLedger is an in-memory suppression ledger.
type memLedger struct {
	mu      sync.Mutex
	bounces []domain.Bounce
	unsubs  []domain.Unsubscribe
}

func (l *memLedger) CountBounces(_ context.Context, address string, kind domain.BounceKind) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.bounces {
		if b.Address == address && b.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (l *memLedger) HasUnsubscribe(_ context.Context, address, tenantID string, category domain.Category) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.unsubs {
		if u.Address == address && u.Category == category && (u.TenantID == nil || *u.TenantID == tenantID) {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) AppendBounce(_ context.Context, b *domain.Bounce) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bounces = append(l.bounces, *b)
	return nil
}

func (l *memLedger) AppendUnsubscribe(_ context.Context, u *domain.Unsubscribe) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubs = append(l.unsubs, *u)
	return nil
}

func (l *memLedger) bouncesOf(kind domain.BounceKind) []domain.Bounce {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Bounce
	for _, b := range l.bounces {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// txLedger buffers appends until the fake transaction commits.
type txLedger struct {
	failErr error
	bounces []domain.Bounce
	unsubs  []domain.Unsubscribe
}

func (t *txLedger) AppendBounce(_ context.Context, b *domain.Bounce) error {
	if t.failErr != nil {
		return t.failErr
	}
	t.bounces = append(t.bounces, *b)
	return nil
}

func (t *txLedger) AppendUnsubscribe(_ context.Context, u *domain.Unsubscribe) error {
	if t.failErr != nil {
		return t.failErr
	}
	t.unsubs = append(t.unsubs, *u)
	return nil
}

// memRepo is an in-memory Repository. A single mutex stands in for the row
// lock so every operation is atomic.
type memRepo struct {
	mu             sync.Mutex
	msgs           map[string]domain.Message
	byKey          map[string]string
	events         map[string][]domain.DeliveryEvent
	providerEvents map[string]bool
	nextEventID    int64
	ledger         *memLedger
	ledgerFail     error
	storeFail      error
}

func newMemRepo() *memRepo {
	return &memRepo{
		msgs:           make(map[string]domain.Message),
		byKey:          make(map[string]string),
		events:         make(map[string][]domain.DeliveryEvent),
		providerEvents: make(map[string]bool),
		ledger:         &memLedger{},
	}
}

func keyOf(tenantID, key string) string { return tenantID + "\x00" + key }

func (r *memRepo) put(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[m.ID] = m
	r.byKey[keyOf(m.TenantID, m.IdempotencyKey)] = m.ID
}

func (r *memRepo) get(id string) domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[id]
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeFail != nil {
		return nil, r.storeFail
	}
	m, ok := r.msgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *memRepo) GetByIdempotencyKey(_ context.Context, tenantID, key string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeFail != nil {
		return nil, r.storeFail
	}
	id, ok := r.byKey[keyOf(tenantID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	m := r.msgs[id]
	return &m, nil
}

func (r *memRepo) GetByProviderMessageID(_ context.Context, pmid string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ProviderMessageID != nil && *m.ProviderMessageID == pmid {
			m := m
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) Create(_ context.Context, msg *domain.Message, created *domain.DeliveryEvent) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeFail != nil {
		return "", false, r.storeFail
	}
	k := keyOf(msg.TenantID, msg.IdempotencyKey)
	if id, ok := r.byKey[k]; ok {
		return id, false, nil
	}
	r.msgs[msg.ID] = *msg
	r.byKey[k] = msg.ID
	r.appendEvent(*created)
	return msg.ID, true, nil
}

func (r *memRepo) appendEvent(ev domain.DeliveryEvent) {
	r.nextEventID++
	ev.ID = r.nextEventID
	r.events[ev.MessageID] = append(r.events[ev.MessageID], ev)
	if ev.ProviderEventID != "" {
		r.providerEvents[ev.ProviderEventID] = true
	}
}

func (r *memRepo) Transition(ctx context.Context, id, providerEventID string, fn TransitionFunc) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeFail != nil {
		return false, r.storeFail
	}
	cur, ok := r.msgs[id]
	if !ok {
		return false, ErrNotFound
	}
	dup := providerEventID != "" && r.providerEvents[providerEventID]

	tx := &txLedger{failErr: r.ledgerFail}
	change, err := fn(ctx, &cur, dup, tx)
	if err != nil || change == nil {
		return false, err
	}

	r.msgs[id] = *change.Message
	r.appendEvent(*change.Event)
	r.ledger.mu.Lock()
	r.ledger.bounces = append(r.ledger.bounces, tx.bounces...)
	r.ledger.unsubs = append(r.ledger.unsubs, tx.unsubs...)
	r.ledger.mu.Unlock()
	return true, nil
}

func (r *memRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.Message
	for _, m := range r.msgs {
		retryDue := m.Status == domain.StatusSoftBounced && m.NextAttemptAt != nil && !m.NextAttemptAt.After(now)
		if m.Status == domain.StatusQueued || retryDue {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = domain.StatusProcessing
		due[i].NextAttemptAt = nil
		due[i].UpdatedAt = now
		r.msgs[due[i].ID] = due[i]
		r.appendEvent(domain.DeliveryEvent{MessageID: due[i].ID, Type: domain.EventTypeFor(domain.StatusProcessing), CreatedAt: now})
	}
	return due, nil
}

func (r *memRepo) ListStale(_ context.Context, status domain.MessageStatus, olderThan time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, m := range r.msgs {
		if m.Status == status && m.UpdatedAt.Before(olderThan) && len(ids) < limit {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (r *memRepo) Events(_ context.Context, id string) ([]domain.DeliveryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DeliveryEvent(nil), r.events[id]...), nil
}
