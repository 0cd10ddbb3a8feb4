package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/model"
)

// Snapshot holds a point-in-time view of extraction health.
type Snapshot struct {
	Pending       int `json:"pending"`
	Processing    int `json:"processing"`
	Completed     int `json:"completed"`
	ManualReview  int `json:"manual_review"`
	Failed        int `json:"failed"`
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	// FailRate is failed / (completed + manual_review + failed).
	FailRate float64 `json:"fail_rate"`

	CollectedAt time.Time `json:"collected_at"`
}

// StatusCounter abstracts the store method the collector needs.
type StatusCounter interface {
	CountExtractionsByStatus(ctx context.Context) (map[model.ExtractionStatus]int, error)
}

// QueueGauge reports the live extraction queue occupancy.
type QueueGauge interface {
	Len() int
	Cap() int
}

// Collector gathers extraction metrics from the store and queue.
type Collector struct {
	store   StatusCounter
	queue   QueueGauge
	metrics *Metrics
}

// NewCollector creates a new metrics collector. queue and metrics may be nil.
func NewCollector(st StatusCounter, queue QueueGauge, metrics *Metrics) *Collector {
	return &Collector{store: st, queue: queue, metrics: metrics}
}

// Collect gathers a snapshot and mirrors it into the Prometheus gauges.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	counts, err := c.store.CountExtractionsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count extractions")
	}

	snap := &Snapshot{
		Pending:      counts[model.ExtractionPending],
		Processing:   counts[model.ExtractionProcessing],
		Completed:    counts[model.ExtractionCompleted],
		ManualReview: counts[model.ExtractionManualReview],
		Failed:       counts[model.ExtractionFailed],
		CollectedAt:  time.Now().UTC(),
	}
	if finished := snap.Completed + snap.ManualReview + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if c.queue != nil {
		snap.QueueDepth = c.queue.Len()
		snap.QueueCapacity = c.queue.Cap()
	}

	if c.metrics != nil {
		for _, status := range []model.ExtractionStatus{
			model.ExtractionPending, model.ExtractionProcessing, model.ExtractionCompleted,
			model.ExtractionManualReview, model.ExtractionFailed,
		} {
			c.metrics.ExtractionsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
		c.metrics.SetQueueDepth(snap.QueueDepth)
	}
	return snap, nil
}
