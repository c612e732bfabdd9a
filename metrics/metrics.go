// Package metrics exposes Prometheus instrumentation for the assistant session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glance"

var (
	// mediaSentTotal counts outbound media chunks by kind (audio, video, tool) and status.
	mediaSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_sent_total",
			Help:      "Total number of outbound chunks handed to the live session",
		},
		[]string{"kind", "status"}, // status: ok, error, dropped
	)

	chunksScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_scheduled_total",
			Help:      "Total number of audio chunks scheduled for playback",
		},
	)

	decodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_decode_failures_total",
			Help:      "Total number of audio chunks skipped because they could not be decoded",
		},
	)

	interruptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Total number of playback flushes caused by barge-in",
		},
	)

	playbackLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_queue_seconds",
			Help:      "Seconds of audio queued ahead of the playback clock when a chunk is scheduled",
			Buckets:   []float64{0, .05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations received from the model",
		},
		[]string{"tool", "status"}, // status: ok, unknown
	)

	marksDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marks_dropped_total",
			Help:      "Total number of malformed marks dropped from mark_screen calls",
		},
	)

	sessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Total number of session status transitions by target status",
		},
		[]string{"status"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active live sessions",
		},
	)

	allMetrics = []prometheus.Collector{
		mediaSentTotal,
		chunksScheduledTotal,
		decodeFailuresTotal,
		interruptionsTotal,
		playbackLag,
		toolCallsTotal,
		marksDroppedTotal,
		sessionTransitionsTotal,
		sessionsActive,
	}

	registry = newRegistry()
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the registry all glance metrics are registered on.
func Registry() *prometheus.Registry {
	return registry
}

// RecordMediaSent records the outcome of an outbound send.
func RecordMediaSent(kind, status string) {
	mediaSentTotal.WithLabelValues(kind, status).Inc()
}

// RecordChunkScheduled records a scheduled playback chunk and how far ahead of the clock it starts.
func RecordChunkScheduled(aheadSeconds float64) {
	chunksScheduledTotal.Inc()
	playbackLag.Observe(aheadSeconds)
}

func RecordDecodeFailure() {
	decodeFailuresTotal.Inc()
}

func RecordInterruption() {
	interruptionsTotal.Inc()
}

// RecordToolCall records a tool invocation.
func RecordToolCall(tool, status string) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordMarksDropped adds n dropped marks.
func RecordMarksDropped(n int) {
	if n > 0 {
		marksDroppedTotal.Add(float64(n))
	}
}

// RecordTransition records a session status change.
func RecordTransition(status string) {
	sessionTransitionsTotal.WithLabelValues(status).Inc()
}

// SessionStarted and SessionEnded track the active session gauge.
func SessionStarted() { sessionsActive.Inc() }

func SessionEnded() { sessionsActive.Dec() }
