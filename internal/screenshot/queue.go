package screenshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/monitoring"
)

var (
	// ErrQueueFull is returned when the queue has no room for another job.
	ErrQueueFull = eris.New("screenshot: extraction queue is full")
	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = eris.New("screenshot: extraction queue is stopped")
)

// Job identifies one extraction record to process.
type Job struct {
	TenantID string
	RecordID string
}

// Handler processes jobs taken off the queue. Fail is called when Handle
// panics.
type Handler interface {
	Handle(ctx context.Context, job Job)
	Fail(ctx context.Context, job Job, reason string)
}

// QueueStats are counters since the queue was created.
type QueueStats struct {
	Enqueued  int64 `json:"enqueued"`
	Rejected  int64 `json:"rejected"`
	Processed int64 `json:"processed"`
	Panicked  int64 `json:"panicked"`
}

// Queue is a bounded job channel drained by a fixed pool of workers.
type Queue struct {
	jobs    chan Job
	workers int
	handler Handler
	metrics *monitoring.Metrics

	mu      sync.Mutex
	queued  map[string]struct{}
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	enqueued  atomic.Int64
	rejected  atomic.Int64
	processed atomic.Int64
	panicked  atomic.Int64
}

// NewQueue creates a queue holding up to size jobs, processed by workers
// goroutines once started. metrics may be nil.
func NewQueue(size, workers int, h Handler, metrics *monitoring.Metrics) *Queue {
	if size <= 0 {
		size = 100
	}
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
		handler: h,
		metrics: metrics,
		queued:  make(map[string]struct{}),
	}
}

// Start launches the workers. Cancelling ctx abandons queued jobs; their
// records stay pending.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := range q.workers {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
}

// Enqueue adds a job without blocking. A job whose record is already queued
// is accepted and dropped.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrQueueStopped
	}
	if _, ok := q.queued[job.RecordID]; ok {
		return nil
	}

	select {
	case q.jobs <- job:
		q.queued[job.RecordID] = struct{}{}
		q.enqueued.Add(1)
		q.metrics.SetQueueDepth(len(q.jobs))
		return nil
	default:
		q.rejected.Add(1)
		q.metrics.IncQueueRejected()
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits up to timeout for the workers to drain the
// queue. On timeout in-flight jobs are cancelled.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.jobs)
	cancel := q.cancel
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-time.After(timeout):
		if cancel != nil {
			cancel()
		}
		<-done
		return eris.Errorf("screenshot: queue stop timed out after %s", timeout)
	}
}

// Len returns the number of jobs waiting.
func (q *Queue) Len() int { return len(q.jobs) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.jobs) }

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Enqueued:  q.enqueued.Load(),
		Rejected:  q.rejected.Load(),
		Processed: q.processed.Load(),
		Panicked:  q.panicked.Load(),
	}
}

func (q *Queue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	log := zap.L().With(zap.String("component", "extraction-worker"), zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.mu.Lock()
			delete(q.queued, job.RecordID)
			q.mu.Unlock()
			q.metrics.SetQueueDepth(len(q.jobs))

			q.run(ctx, log, job)
			q.processed.Add(1)
		}
	}
}

func (q *Queue) run(ctx context.Context, log *zap.Logger, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.panicked.Add(1)
			log.Error("screenshot: extraction job panicked",
				zap.String("tenant_id", job.TenantID),
				zap.String("record_id", job.RecordID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			q.handler.Fail(ctx, job, fmt.Sprintf("panic: %v", r))
		}
	}()
	q.handler.Handle(ctx, job)
}
