package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lime"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive      prometheus.Gauge
	SessionsEstablished prometheus.Counter
	SessionsFailed      *prometheus.CounterVec

	// Envelope metrics
	EnvelopesTotal   *prometheus.CounterVec
	RoutingFailures  *prometheus.CounterVec
	CommandsExecuted *prometheus.CounterVec

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge metrics
	BridgeTransports prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec
}

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler serves the global registry in Prometheus text format.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently established",
		}),
		SessionsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_established_total",
			Help:      "Sessions that reached the established state",
		}),
		SessionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Sessions that ended in the failed state",
		}, []string{"reason"}),

		EnvelopesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Envelopes processed by kind and direction",
		}, []string{"kind", "direction"}),
		RoutingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_failures_total",
			Help:      "Envelopes that could not be routed",
		}, []string{"kind"}),
		CommandsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_executed_total",
			Help:      "Commands executed against the resource store",
		}, []string{"method", "status"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests by protocol, method and status",
		}, []string{"protocol", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol", "method"}),

		BridgeTransports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_transports",
			Help:      "HTTP session transports currently cached",
		}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Failed session authentications by scheme",
		}, []string{"scheme"}),
	}

	reg.MustRegister(
		r.SessionsActive,
		r.SessionsEstablished,
		r.SessionsFailed,
		r.EnvelopesTotal,
		r.RoutingFailures,
		r.CommandsExecuted,
		r.RequestsTotal,
		r.RequestDuration,
		r.BridgeTransports,
		r.AuthFailures,
	)
	return r
}

// Registerer exposes the underlying registry so components can register
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Handler serves this registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ============================================================================
// Helpers
// ============================================================================

// SessionEstablished records a session reaching the established state.
func (r *Registry) SessionEstablished() {
	r.SessionsEstablished.Inc()
	r.SessionsActive.Inc()
}

// SessionEnded records an established session leaving.
func (r *Registry) SessionEnded() {
	r.SessionsActive.Dec()
}

// RecordSessionFailed records a failed session.
func (r *Registry) RecordSessionFailed(reason string) {
	r.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordEnvelope counts an envelope; direction is "in", "out" or "dropped".
func (r *Registry) RecordEnvelope(kind, direction string) {
	r.EnvelopesTotal.WithLabelValues(kind, direction).Inc()
}

// RecordRoutingFailure counts an undeliverable envelope.
func (r *Registry) RecordRoutingFailure(kind string) {
	r.RoutingFailures.WithLabelValues(kind).Inc()
}

// RecordCommand counts a command executed by the server node.
func (r *Registry) RecordCommand(method, status string) {
	r.CommandsExecuted.WithLabelValues(method, status).Inc()
}

// RecordRequest counts a request.
func (r *Registry) RecordRequest(protocol, method, status string) {
	r.RequestsTotal.WithLabelValues(protocol, method, status).Inc()
}

// ObserveRequestDuration records request latency in seconds.
func (r *Registry) ObserveRequestDuration(protocol, method string, seconds float64) {
	r.RequestDuration.WithLabelValues(protocol, method).Observe(seconds)
}

// SetBridgeTransports sets the number of cached HTTP session transports.
func (r *Registry) SetBridgeTransports(n int) {
	r.BridgeTransports.Set(float64(n))
}

// RecordAuthFailure counts a failed authentication.
func (r *Registry) RecordAuthFailure(scheme string) {
	r.AuthFailures.WithLabelValues(scheme).Inc()
}
