package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/model"
)

type mockCounter struct {
	counts map[model.ExtractionStatus]int
	err    error
}

func (m *mockCounter) CountExtractionsByStatus(context.Context) (map[model.ExtractionStatus]int, error) {
	return m.counts, m.err
}

type fixedQueue struct{ n, c int }

func (q fixedQueue) Len() int { return q.n }
func (q fixedQueue) Cap() int { return q.c }

func TestCollector_Collect(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	st := &mockCounter{counts: map[model.ExtractionStatus]int{
		model.ExtractionPending:      3,
		model.ExtractionCompleted:    6,
		model.ExtractionManualReview: 2,
		model.ExtractionFailed:       2,
	}}
	c := NewCollector(st, fixedQueue{n: 5, c: 10}, metrics)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Pending)
	assert.Equal(t, 2, snap.Failed)
	assert.InDelta(t, 0.2, snap.FailRate, 0.0001)
	assert.Equal(t, 5, snap.QueueDepth)
	assert.Equal(t, 10, snap.QueueCapacity)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.ExtractionsByStatus.WithLabelValues("pending")), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.ExtractionsByStatus.WithLabelValues("processing")), 0.001)
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.QueueDepth), 0.001)
}

func TestCollector_NoFinishedRecords(t *testing.T) {
	c := NewCollector(&mockCounter{counts: map[model.ExtractionStatus]int{model.ExtractionPending: 1}}, nil, nil)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.FailRate)
	assert.Zero(t, snap.QueueCapacity)
}

func TestCollector_StoreError(t *testing.T) {
	c := NewCollector(&mockCounter{err: errors.New("db down")}, nil, nil)

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: count extractions")
}

func TestMetrics_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_Observers(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	metrics.ObserveAggregation(true, 0)
	metrics.ObserveAggregation(false, 0)
	metrics.ObserveAggregation(false, 0)
	metrics.ObserveExtraction("completed", 0)
	metrics.IncRegionFailure()
	metrics.IncQueueRejected()
	metrics.ObserveCacheLookup(true)
	metrics.ObserveCacheLookup(false)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.AggregationRuns.WithLabelValues("ok")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.AggregationRuns.WithLabelValues("error")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ExtractionJobs.WithLabelValues("completed")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RegionFailures), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.QueueRejected), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MachineTypeCacheHits.WithLabelValues("miss")), 0.001)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.ObserveAggregation(true, 0)
		metrics.ObserveExtraction("failed", 0)
		metrics.IncRegionFailure()
		metrics.SetQueueDepth(3)
		metrics.IncQueueRejected()
		metrics.ObserveCacheLookup(true)
	})
}
