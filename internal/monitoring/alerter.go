package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertExtractionFailureRate AlertType = "extraction_failure_rate"
	AlertQueueSaturated        AlertType = "queue_saturated"
	AlertStuckProcessing       AlertType = "stuck_processing"
)

// Alert represents a single threshold breach.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Thresholds configures when the Alerter fires.
type Thresholds struct {
	FailureRate     float64 // fraction of finished records
	MinFinished     int     // failure rate ignored below this sample size
	QueueSaturation float64 // fraction of queue capacity
	MaxProcessing   int
}

// DefaultThresholds returns the thresholds used by serve.
func DefaultThresholds() Thresholds {
	return Thresholds{FailureRate: 0.25, MinFinished: 10, QueueSaturation: 0.8, MaxProcessing: 50}
}

// Alerter evaluates a Snapshot against thresholds and logs breaches.
type Alerter struct {
	th Thresholds
}

// NewAlerter creates an Alerter.
func NewAlerter(th Thresholds) *Alerter {
	return &Alerter{th: th}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.Completed + snap.ManualReview + snap.Failed
	if finished >= a.th.MinFinished && snap.FailRate > a.th.FailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertExtractionFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("extraction failure rate %.1f%% exceeds %.1f%% (%d of %d)",
				snap.FailRate*100, a.th.FailureRate*100, snap.Failed, finished),
			Details:   map[string]any{"failed": snap.Failed, "finished": finished},
			Timestamp: now,
		})
	}

	if snap.QueueCapacity > 0 && float64(snap.QueueDepth) >= a.th.QueueSaturation*float64(snap.QueueCapacity) {
		alerts = append(alerts, Alert{
			Type:      AlertQueueSaturated,
			Severity:  "medium",
			Message:   fmt.Sprintf("extraction queue at %d of %d", snap.QueueDepth, snap.QueueCapacity),
			Details:   map[string]any{"depth": snap.QueueDepth, "capacity": snap.QueueCapacity},
			Timestamp: now,
		})
	}

	if a.th.MaxProcessing > 0 && snap.Processing > a.th.MaxProcessing {
		alerts = append(alerts, Alert{
			Type:      AlertStuckProcessing,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d extraction records in processing", snap.Processing),
			Details:   map[string]any{"processing": snap.Processing},
			Timestamp: now,
		})
	}

	return alerts
}

// Log writes each alert to the given logger and returns how many were logged.
func (a *Alerter) Log(log *zap.Logger, alerts []Alert) int {
	for _, alert := range alerts {
		log.Warn("monitoring: alert",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
	}
	return len(alerts)
}
