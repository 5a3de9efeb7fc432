// Package deliverability decides whether a send may proceed given the
// current state of the suppression ledger.
package deliverability

import (
	"context"
	"fmt"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/suppression"
)

// DefaultHardBounceThreshold is the number of hard bounces, across all
// tenants, at which an address stops receiving mail of any category.
const DefaultHardBounceThreshold = 3

// Reason explains a gate decision.
type Reason string

const (
	ReasonDeliverable  Reason = "deliverable"
	ReasonHardBounced  Reason = "hard_bounce_threshold"
	ReasonUnsubscribed Reason = "unsubscribed"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Deliverable bool   `json:"deliverable"`
	Reason      Reason `json:"reason"`
	HardBounces int    `json:"hard_bounces"`
}

// Gate is a pure read over the ledger. It never writes.
type Gate struct {
	ledger    suppression.LedgerReader
	threshold int
}

// NewGate creates a gate. A non-positive threshold falls back to
// DefaultHardBounceThreshold.
func NewGate(ledger suppression.LedgerReader, threshold int) *Gate {
	if threshold <= 0 {
		threshold = DefaultHardBounceThreshold
	}
	return &Gate{ledger: ledger, threshold: threshold}
}

// Threshold returns the configured hard bounce threshold.
func (g *Gate) Threshold() int { return g.threshold }

// IsDeliverable reports whether mail of the given category may be sent to
// address on behalf of tenantID.
func (g *Gate) IsDeliverable(ctx context.Context, address, tenantID string, category domain.Category) (bool, error) {
	d, err := g.Check(ctx, address, tenantID, category)
	if err != nil {
		return false, err
	}
	return d.Deliverable, nil
}

// Check evaluates the reputation rule, then the opt-out rule. Either one
// blocks on its own.
func (g *Gate) Check(ctx context.Context, address, tenantID string, category domain.Category) (Decision, error) {
	address = domain.NormalizeAddress(address)

	// Reputation is global: hard bounces from every tenant count, and the
	// rule applies to transactional mail too. Soft bounces never count.
	hard, err := g.ledger.CountBounces(ctx, address, domain.BounceHard)
	if err != nil {
		return Decision{}, fmt.Errorf("count hard bounces: %w", err)
	}
	if hard >= g.threshold {
		return Decision{Reason: ReasonHardBounced, HardBounces: hard}, nil
	}

	if category == domain.CategoryMarketing {
		unsubscribed, err := g.ledger.HasUnsubscribe(ctx, address, tenantID, category)
		if err != nil {
			return Decision{}, fmt.Errorf("check unsubscribe: %w", err)
		}
		if unsubscribed {
			return Decision{Reason: ReasonUnsubscribed, HardBounces: hard}, nil
		}
	}

	return Decision{Deliverable: true, Reason: ReasonDeliverable, HardBounces: hard}, nil
}
