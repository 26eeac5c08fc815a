package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	IngestEntries     *prometheus.CounterVec
	StreamConnections *prometheus.GaugeVec
	StreamEvents      *prometheus.CounterVec
	StoreErrors       *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	PollDuration      prometheus.Histogram

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live broadcast sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		IngestEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_entries_total",
			Help:      "Ingest attempts by log kind and result.",
		}, []string{"kind", "result"}),
		StreamConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections",
			Help:      "Open listener connections by transport.",
		}, []string{"transport"}),
		StreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Events delivered to listeners by type.",
		}, []string{"type"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Session store failures by operation.",
		}, []string{"op"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_poll_duration_ms",
			Help:      "Duration of one broadcast poll (length + range read) in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		latency: newLatencyWindow(defaultWindowSlots),
	}
}

func (m *Metrics) IncActiveSessions() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) DecActiveSessions() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveIngest(kind, result string) {
	if m == nil {
		return
	}
	m.IngestEntries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) StreamOpened(transport string) {
	if m == nil {
		return
	}
	m.StreamConnections.WithLabelValues(transport).Inc()
}

func (m *Metrics) StreamClosed(transport string) {
	if m == nil {
		return
	}
	m.StreamConnections.WithLabelValues(transport).Dec()
}

func (m *Metrics) ObserveStreamEvent(eventType string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObservePoll(d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.PollDuration.Observe(ms)
	m.latency.Observe(StageStreamPoll, ms)
}

// ObserveLatency records a stage sample in the rolling window only.
func (m *Metrics) ObserveLatency(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) LatencySnapshot() LatencySnapshot {
	if m == nil {
		return (*latencyWindow)(nil).Snapshot()
	}
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
