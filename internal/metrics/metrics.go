// Package metrics holds the Prometheus collectors for chat and doubt summarization.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensei"

// Metrics is a set of collectors bound to one registry. All record methods are safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests         *prometheus.CounterVec
	ChatErrors           *prometheus.CounterVec
	ChatLatency          *prometheus.HistogramVec
	BackendRetries       prometheus.Counter
	KnowledgeSourcesUsed prometheus.Histogram
	ActiveStreams        prometheus.Gauge
	DoubtUploads         prometheus.Counter
	DoubtMessages        prometheus.Counter
	ClusteringDuration   prometheus.Histogram
}

// New creates the collectors on a fresh registry that also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat turns by mode, backend and delivery.",
		}, []string{"mode", "backend", "delivery"}),
		ChatErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_errors_total",
			Help:      "Failed chat turns by error type.",
		}, []string{"error_type"}),
		ChatLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_duration_seconds",
			Help:      "Chat turn latency from receipt to persisted answer.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"backend"}),
		BackendRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Backend calls retried after an unavailable error.",
		}),
		KnowledgeSourcesUsed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "knowledge_sources_used",
			Help:      "Knowledge snippets placed in each prompt.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_streams_active",
			Help:      "Streaming chat turns in progress.",
		}),
		DoubtUploads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doubt_uploads_total",
			Help:      "Doubt batches uploaded.",
		}),
		DoubtMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doubt_messages_total",
			Help:      "Doubt messages accepted across uploads.",
		}),
		ClusteringDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "doubt_clustering_duration_seconds",
			Help:      "Time spent clustering one course's doubts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// RegisterConversationGauge exposes the live conversation count reported by count.
func (m *Metrics) RegisterConversationGauge(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "conversations_active",
		Help:      "Conversations held in memory.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveChat records one finished chat turn.
func (m *Metrics) ObserveChat(mode, backend string, stream bool, sources int, elapsed time.Duration) {
	if m == nil {
		return
	}
	delivery := "complete"
	if stream {
		delivery = "stream"
	}
	m.ChatRequests.WithLabelValues(mode, backend, delivery).Inc()
	m.ChatLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
	m.KnowledgeSourcesUsed.Observe(float64(sources))
}

// ChatFailed records a failed turn.
func (m *Metrics) ChatFailed(errorType string) {
	if m == nil {
		return
	}
	m.ChatErrors.WithLabelValues(errorType).Inc()
}

// Retried records one backend retry.
func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.BackendRetries.Inc()
}

// StreamStarted increments the active stream gauge and returns the matching decrement.
func (m *Metrics) StreamStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveStreams.Inc()
	return m.ActiveStreams.Dec
}

// Uploaded records an accepted doubt batch of n messages.
func (m *Metrics) Uploaded(n int) {
	if m == nil {
		return
	}
	m.DoubtUploads.Inc()
	m.DoubtMessages.Add(float64(n))
}

// ObserveClustering records one clustering run.
func (m *Metrics) ObserveClustering(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ClusteringDuration.Observe(elapsed.Seconds())
}
