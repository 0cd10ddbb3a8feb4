package screenshot

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/model"
)

const staleReason = "extraction did not finish in time"

// PendingSource lists records waiting for extraction across tenants.
type PendingSource interface {
	ListPendingExtractions(ctx context.Context, limit int) ([]model.ExtractionRecord, error)
	FailStaleExtractions(ctx context.Context, cutoff time.Time, reason string) (int, error)
}

// Dispatcher periodically feeds pending records into the queue and fails
// records stuck in processing. Uploads that could not be queued, and work
// lost in a restart, are picked up here.
type Dispatcher struct {
	store      PendingSource
	queue      *Queue
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. Zero durations default to a 30s sweep
// and a 10 minute stale cutoff.
func NewDispatcher(st PendingSource, q *Queue, interval, staleAfter time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &Dispatcher{store: st, queue: q, interval: interval, staleAfter: staleAfter, now: time.Now}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "extraction-dispatcher"))
	log.Info("screenshot: dispatcher started", zap.Duration("interval", d.interval))

	d.Sweep(ctx)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("screenshot: dispatcher stopped")
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and reports how many records were queued and failed.
func (d *Dispatcher) Sweep(ctx context.Context) (queued, failed int) {
	log := zap.L().With(zap.String("component", "extraction-dispatcher"))

	failed, err := d.store.FailStaleExtractions(ctx, d.now().Add(-d.staleAfter), staleReason)
	if err != nil {
		log.Warn("screenshot: fail stale extractions", zap.Error(err))
	} else if failed > 0 {
		log.Warn("screenshot: failed stale extractions", zap.Int("count", failed))
	}

	free := d.queue.Cap() - d.queue.Len()
	if free <= 0 {
		return 0, failed
	}
	recs, err := d.store.ListPendingExtractions(ctx, free)
	if err != nil {
		log.Warn("screenshot: list pending extractions", zap.Error(err))
		return 0, failed
	}
	for _, r := range recs {
		if err := d.queue.Enqueue(Job{TenantID: r.TenantID, RecordID: r.ID}); err != nil {
			if !errors.Is(err, ErrQueueFull) {
				log.Warn("screenshot: requeue pending extraction", zap.String("record_id", r.ID), zap.Error(err))
			}
			break
		}
		queued++
	}
	if queued > 0 {
		log.Debug("screenshot: queued pending extractions", zap.Int("count", queued))
	}
	return queued, failed
}
