package messaging

import (
	"time"

	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/service/suppression"
)

const (
	// DefaultMaxAttempts bounds the dispatch attempts of a message.
	DefaultMaxAttempts = 5
	// DefaultBackoffBase is multiplied by 2^attempt_count to schedule a retry.
	DefaultBackoffBase = time.Minute
)

// Config tunes retry scheduling and the complaint policy.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration

	// ComplaintUnsubscribes makes a complained transition also append a
	// marketing unsubscribe for the message's tenant.
	ComplaintUnsubscribes bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	return c
}

// Service implements the enqueuer and the status state machine. It is safe
// for concurrent use; per-message serialization is delegated to the
// repository's row locks.
type Service struct {
	repo     Repository
	gate     Gatekeeper
	recorder *suppression.Recorder
	cfg      Config
	now      func() time.Time
	log      *logger.Logger
}

// NewService wires the messaging service.
func NewService(repo Repository, gate Gatekeeper, recorder *suppression.Recorder, cfg Config) *Service {
	if recorder == nil {
		recorder = suppression.NewRecorder()
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.With("component", "messaging"),
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }
