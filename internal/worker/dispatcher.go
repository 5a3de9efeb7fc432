package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/service/messaging"
	"github.com/ignite/delivery-engine/internal/service/sending"
)

const (
	DefaultDispatchInterval = 5 * time.Second
	DefaultDispatchBatch    = 100
	DefaultDispatchWorkers  = 4
)

// Outbox is the part of the messaging service the dispatcher drives.
type Outbox interface {
	ClaimDue(ctx context.Context, limit int) ([]domain.Message, error)
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, opts messaging.UpdateOptions) (bool, error)
}

// Dispatcher claims due messages and hands them to a provider. Claims are
// made with SKIP LOCKED, so several dispatcher processes can share a
// database.
type Dispatcher struct {
	outbox    Outbox
	sender    sending.Sender
	limiter   *RateLimiter
	interval  time.Duration
	batchSize int
	workers   int
	log       *logger.Logger

	sent      int64
	retried   int64
	failed    int64
	claimErrs int64
}

// DispatcherOptions configures a Dispatcher. Zero fields take defaults.
type DispatcherOptions struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
	Limiter   *RateLimiter
}

func NewDispatcher(outbox Outbox, sender sending.Sender, opts DispatcherOptions) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultDispatchInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultDispatchBatch
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultDispatchWorkers
	}
	return &Dispatcher{
		outbox:    outbox,
		sender:    sender,
		limiter:   opts.Limiter,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		log:       logger.With("component", "dispatcher", "provider", sender.Name()),
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.log.Info("starting", "interval", d.interval.String(), "batch_size", d.batchSize, "workers", d.workers)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		// Drain while batches come back full.
		for ctx.Err() == nil && d.RunOnce(ctx) == d.batchSize {
		}
		select {
		case <-ctx.Done():
			d.log.Info("stopping", "sent", atomic.LoadInt64(&d.sent), "failed", atomic.LoadInt64(&d.failed))
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and delivers it. It returns the number of
// messages claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	msgs, err := d.outbox.ClaimDue(ctx, d.batchSize)
	if err != nil {
		atomic.AddInt64(&d.claimErrs, 1)
		d.log.Error("claim failed", "error", err)
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}

	work := make(chan domain.Message)
	var wg sync.WaitGroup
	for i := 0; i < d.workers && i < len(msgs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range work {
				d.deliver(ctx, m)
			}
		}()
	}
	for _, m := range msgs {
		work <- m
	}
	close(work)
	wg.Wait()
	return len(msgs)
}

func (d *Dispatcher) deliver(ctx context.Context, msg domain.Message) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, d.sender.Name()); err != nil {
			// Left in processing; the recovery sweep will reschedule it.
			return
		}
	}

	res, sendErr := d.sender.Send(ctx, &msg)

	// The provider call already happened; record it even during shutdown.
	ctx = context.WithoutCancel(ctx)

	if sendErr != nil {
		code, text, permanent := sending.Classify(sendErr)
		status := domain.StatusSoftBounced
		if permanent {
			status = domain.StatusFailed
		}
		if _, err := d.outbox.UpdateStatus(ctx, msg.ID, status, messaging.UpdateOptions{
			ErrorCode:    code,
			ErrorMessage: text,
		}); err != nil {
			d.log.Error("record send failure", "message_id", msg.ID, "error", err)
			return
		}
		if permanent {
			atomic.AddInt64(&d.failed, 1)
		} else {
			atomic.AddInt64(&d.retried, 1)
		}
		d.log.Warn("send failed", "message_id", msg.ID, "code", code, "permanent", permanent)
		return
	}

	if _, err := d.outbox.UpdateStatus(ctx, msg.ID, domain.StatusSent, messaging.UpdateOptions{
		ProviderMessageID: res.ProviderMessageID,
	}); err != nil {
		d.log.Error("record sent", "message_id", msg.ID, "provider_message_id", res.ProviderMessageID, "error", err)
		return
	}
	atomic.AddInt64(&d.sent, 1)
}

// Stats returns delivery counters since start.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"sent":         atomic.LoadInt64(&d.sent),
		"retried":      atomic.LoadInt64(&d.retried),
		"failed":       atomic.LoadInt64(&d.failed),
		"claim_errors": atomic.LoadInt64(&d.claimErrs),
	}
}
