package worker

import (
	"context"
	"time"

	"github.com/ignite/delivery-engine/internal/pkg/distlock"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
)

const (
	// DefaultRecoveryInterval is how often the sweep runs.
	DefaultRecoveryInterval = time.Minute
	// DefaultStaleAge is how long a claim may sit in processing before it is
	// treated as abandoned by a crashed dispatcher.
	DefaultStaleAge = 10 * time.Minute

	recoveryBatch = 500
)

// StaleRecoverer soft-bounces abandoned claims.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context, staleAge time.Duration, limit int) (int, error)
}

// RecoveryWorker periodically returns messages stuck in processing to the
// retry schedule. Only the holder of the lock sweeps.
type RecoveryWorker struct {
	svc      StaleRecoverer
	lock     distlock.Lock
	interval time.Duration
	staleAge time.Duration
	log      *logger.Logger
}

func NewRecoveryWorker(svc StaleRecoverer, lock distlock.Lock, interval, staleAge time.Duration) *RecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &RecoveryWorker{
		svc:      svc,
		lock:     lock,
		interval: interval,
		staleAge: staleAge,
		log:      logger.With("component", "recovery"),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *RecoveryWorker) Start(ctx context.Context) {
	w.log.Info("starting", "interval", w.interval.String(), "stale_age", w.staleAge.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopping")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns the number of messages recovered.
func (w *RecoveryWorker) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	total := 0
	ran, err := distlock.Run(ctx, w.lock, func(ctx context.Context) error {
		for {
			n, err := w.svc.RecoverStale(ctx, w.staleAge, recoveryBatch)
			total += n
			if err != nil || n < recoveryBatch {
				return err
			}
		}
	})
	switch {
	case err != nil:
		w.log.Error("sweep failed", "recovered", total, "error", err)
	case !ran:
		w.log.Debug("sweep skipped, lock held elsewhere")
	case total > 0:
		w.log.Info("recovered stale claims", "count", total)
	}
	return total
}
