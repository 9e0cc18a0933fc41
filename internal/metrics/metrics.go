// Package metrics holds the Prometheus instruments for extraction.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for connection and collection.
type Metrics struct {
	EntriesCollected  *prometheus.CounterVec
	EntriesSuppressed *prometheus.CounterVec
	EntriesDropped    *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	RetryAttempts     *prometheus.CounterVec
	ConnectDuration   prometheus.Histogram
}

// Default returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - browserlog_entries_collected_total{kind} - entries appended to a buffer
//   - browserlog_entries_suppressed_total{code} - entries dropped as known noise
//   - browserlog_entries_dropped_total{reason} - entries lost to capacity or decode errors
//   - browserlog_reconnects_total{result} - reconnection efforts by outcome
//   - browserlog_retry_attempts_total{label} - failed attempts that were retried
//   - browserlog_connect_duration_seconds - time to an open, enabled session
func Default() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			EntriesCollected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "browserlog_entries_collected_total",
					Help: "Total number of entries buffered during collection",
				},
				[]string{"kind"},
			),
			EntriesSuppressed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "browserlog_entries_suppressed_total",
					Help: "Total number of entries dropped at ingestion as known noise",
				},
				[]string{"code"},
			),
			EntriesDropped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "browserlog_entries_dropped_total",
					Help: "Total number of events that could not be buffered",
				},
				[]string{"reason"}, // "capacity" or "decode"
			),
			Reconnects: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "browserlog_reconnects_total",
					Help: "Total number of reconnection efforts after a mid-window disconnect",
				},
				[]string{"result"}, // "success" or "exhausted"
			),
			RetryAttempts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "browserlog_retry_attempts_total",
					Help: "Total number of recoverable failures that were retried",
				},
				[]string{"label"},
			),
			ConnectDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "browserlog_connect_duration_seconds",
					Help:    "Time from liveness probe to an enabled session",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
				},
			),
		}
	})

	return globalMetrics
}

// RecordCollected records a buffered entry of the given kind.
func (m *Metrics) RecordCollected(kind string) {
	if m == nil {
		return
	}
	m.EntriesCollected.WithLabelValues(kind).Inc()
}

// RecordSuppressed records an entry dropped as known noise.
func (m *Metrics) RecordSuppressed(code string) {
	if m == nil {
		return
	}
	m.EntriesSuppressed.WithLabelValues(code).Inc()
}

// RecordDropped records an event that was not buffered.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.EntriesDropped.WithLabelValues(reason).Inc()
}

// RecordReconnect records the outcome of a reconnection effort.
func (m *Metrics) RecordReconnect(success bool) {
	if m == nil {
		return
	}
	result := "exhausted"
	if success {
		result = "success"
	}
	m.Reconnects.WithLabelValues(result).Inc()
}

// RecordRetry records a retried attempt for label.
func (m *Metrics) RecordRetry(label string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(label).Inc()
}

// ObserveConnect records how long a connection took.
func (m *Metrics) ObserveConnect(seconds float64) {
	if m == nil {
		return
	}
	m.ConnectDuration.Observe(seconds)
}
