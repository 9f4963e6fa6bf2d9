// Package metrics holds the process-wide Prometheus registry for the
// worker pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the worker pipeline emits.
type Metrics struct {
	// Consume-loop metrics
	MessagesProcessedTotal prometheus.CounterVec
	HandlerDuration        prometheus.HistogramVec
	RetriesTotal           prometheus.CounterVec

	// ASR client metrics
	ASRCallDuration    prometheus.HistogramVec
	ASRCallErrorsTotal prometheus.CounterVec

	// Heartbeat metrics
	HeartbeatExtensionsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers every metric. Safe to call more than
// once; only the first call registers anything.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			MessagesProcessedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transcriber_messages_processed_total",
					Help: "Total number of queue messages handled, by queue and outcome",
				},
				[]string{"queue", "outcome"},
			),
			HandlerDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "transcriber_handler_duration_seconds",
					Help:    "Handler execution latency in seconds, by queue",
					Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 60, 300},
				},
				[]string{"queue"},
			),
			RetriesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transcriber_retries_total",
					Help: "Total number of redeliveries observed, by queue",
				},
				[]string{"queue"},
			),
			ASRCallDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "transcriber_asr_call_duration_seconds",
					Help:    "ASR HTTP call latency in seconds, by operation",
					Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"operation"},
			),
			ASRCallErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transcriber_asr_call_errors_total",
					Help: "Total number of ASR HTTP call failures, by operation and class",
				},
				[]string{"operation", "class"},
			),
			HeartbeatExtensionsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transcriber_heartbeat_extensions_total",
					Help: "Total number of visibility-timeout extensions sent during long-running handlers",
				},
				[]string{"queue"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance, initializing it on first use.
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
