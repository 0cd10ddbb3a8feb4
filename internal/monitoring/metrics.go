// Package monitoring exposes Prometheus metrics and a periodic health checker
// for the aggregation engine and the screenshot extraction queue.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing, so components can take it as an optional dependency.
type Metrics struct {
	AggregationRuns      *prometheus.CounterVec
	AggregationDuration  prometheus.Histogram
	ExtractionJobs       *prometheus.CounterVec
	ExtractionDuration   prometheus.Histogram
	RegionFailures       prometheus.Counter
	QueueDepth           prometheus.Gauge
	QueueRejected        prometheus.Counter
	ExtractionsByStatus  *prometheus.GaugeVec
	MachineTypeCacheHits *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AggregationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loomtrack_aggregation_runs_total",
			Help: "Daily summary recomputations by result.",
		}, []string{"result"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loomtrack_aggregation_duration_seconds",
			Help:    "Duration of daily summary recomputations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		ExtractionJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loomtrack_extraction_jobs_total",
			Help: "Screenshot extraction jobs by terminal status.",
		}, []string{"status"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loomtrack_extraction_duration_seconds",
			Help:    "Duration of a full screenshot extraction.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		RegionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loomtrack_ocr_region_failures_total",
			Help: "Regions whose OCR failed and scored zero confidence.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loomtrack_extraction_queue_depth",
			Help: "Jobs waiting in the extraction queue.",
		}),
		QueueRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loomtrack_extraction_queue_rejected_total",
			Help: "Jobs rejected because the extraction queue was full.",
		}),
		ExtractionsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loomtrack_extraction_records",
			Help: "Extraction records by status, across tenants.",
		}, []string{"status"}),
		MachineTypeCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loomtrack_machine_type_cache_lookups_total",
			Help: "Machine type cache lookups by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.AggregationRuns, m.AggregationDuration, m.ExtractionJobs, m.ExtractionDuration,
		m.RegionFailures, m.QueueDepth, m.QueueRejected, m.ExtractionsByStatus, m.MachineTypeCacheHits,
	} {
		if err := reg.Register(c); err != nil {
			return nil, eris.Wrap(err, "monitoring: register metric")
		}
	}
	return m, nil
}

// ObserveAggregation records one summary recomputation.
func (m *Metrics) ObserveAggregation(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.AggregationRuns.WithLabelValues(resultLabel(ok)).Inc()
	m.AggregationDuration.Observe(d.Seconds())
}

// ObserveExtraction records one finished extraction job.
func (m *Metrics) ObserveExtraction(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionJobs.WithLabelValues(status).Inc()
	m.ExtractionDuration.Observe(d.Seconds())
}

// IncRegionFailure counts a region whose OCR failed.
func (m *Metrics) IncRegionFailure() {
	if m == nil {
		return
	}
	m.RegionFailures.Inc()
}

// SetQueueDepth reports the number of queued jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncQueueRejected counts a job turned away by a full queue.
func (m *Metrics) IncQueueRejected() {
	if m == nil {
		return
	}
	m.QueueRejected.Inc()
}

// ObserveCacheLookup records a machine type cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.MachineTypeCacheHits.WithLabelValues(label).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
