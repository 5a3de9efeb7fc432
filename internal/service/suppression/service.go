package suppression

import (
	"context"

	"github.com/ignite/delivery-engine/internal/domain"
)

// Service exposes the ledger operations that happen outside a status
// transition: opt-out intake, direct bounce imports and history lookups.
type Service struct {
	repo     Repository
	recorder *Recorder
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository, recorder *Recorder) *Service {
	if recorder == nil {
		recorder = NewRecorder()
	}
	return &Service{repo: repo, recorder: recorder}
}

// Unsubscribe appends an opt-out for the address. An empty tenantID applies
// to every tenant.
func (s *Service) Unsubscribe(ctx context.Context, address, tenantID string, category domain.Category, source domain.UnsubscribeSource) error {
	return s.recorder.RecordUnsubscribe(ctx, s.repo, address, tenantID, category, source)
}

// RecordBounce appends a bounce that did not come from a status transition,
// e.g. an import from a previous provider.
func (s *Service) RecordBounce(ctx context.Context, address string, kind domain.BounceKind, tenantID string) error {
	return s.recorder.RecordBounce(ctx, s.repo, address, kind, tenantID, "")
}

// History is every ledger record for one address.
type History struct {
	Address      string               `json:"address"`
	Unsubscribes []domain.Unsubscribe `json:"unsubscribes"`
	Bounces      []domain.Bounce      `json:"bounces"`
	HardBounces  int                  `json:"hard_bounces"`
	SoftBounces  int                  `json:"soft_bounces"`
	Complaints   int                  `json:"complaints"`
}

// History returns the ledger records for an address with per-kind counts.
func (s *Service) History(ctx context.Context, address string) (*History, error) {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	unsubs, bounces, err := s.repo.History(ctx, address)
	if err != nil {
		return nil, err
	}

	h := &History{Address: address, Unsubscribes: unsubs, Bounces: bounces}
	for _, b := range bounces {
		switch b.Kind {
		case domain.BounceHard:
			h.HardBounces++
		case domain.BounceSoft:
			h.SoftBounces++
		case domain.BounceComplaint:
			h.Complaints++
		}
	}
	return h, nil
}
