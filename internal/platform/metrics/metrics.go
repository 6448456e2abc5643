package metrics

import (
	"errors"
	"net/http"
	"time"

	"dash-proxy/internal/upstream"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for upstream calls.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics holds Prometheus collectors for the manifest proxy. All methods are
// no-ops on a nil *Metrics.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	manifestsBuiltTotal   *prometheus.CounterVec
	streamBytesTotal      prometheus.Counter
	activeStreams         prometheus.Gauge
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashproxy_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashproxy_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	manifestsBuiltTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashproxy_manifests_built_total",
		Help: "Total number of manifests synthesized",
	}, []string{"variant"})
	streamBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashproxy_stream_bytes_total",
		Help: "Total number of media bytes relayed by the stream passthrough",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashproxy_active_streams",
		Help: "Number of passthrough streams currently being relayed",
	})
	upstreamRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashproxy_upstream_requests_total",
		Help: "Total number of upstream calls by step and outcome",
	}, []string{"step", "outcome"})
	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashproxy_upstream_duration_seconds",
		Help:    "Duration of upstream calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		manifestsBuiltTotal,
		streamBytesTotal,
		activeStreams,
		upstreamRequestsTotal,
		upstreamDuration,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		manifestsBuiltTotal:   manifestsBuiltTotal,
		streamBytesTotal:      streamBytesTotal,
		activeStreams:         activeStreams,
		upstreamRequestsTotal: upstreamRequestsTotal,
		upstreamDuration:      upstreamDuration,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// IncManifestsBuilt counts one synthesized manifest of the given variant.
func (m *Metrics) IncManifestsBuilt(variant string) {
	if m != nil {
		m.manifestsBuiltTotal.WithLabelValues(variant).Inc()
	}
}

// AddStreamBytes adds relayed passthrough bytes.
func (m *Metrics) AddStreamBytes(n int64) {
	if m != nil && n > 0 {
		m.streamBytesTotal.Add(float64(n))
	}
}

// StreamStarted and StreamFinished bracket a passthrough relay.
func (m *Metrics) StreamStarted() {
	if m != nil {
		m.activeStreams.Inc()
	}
}

func (m *Metrics) StreamFinished() {
	if m != nil {
		m.activeStreams.Dec()
	}
}

// ObserveUpstream implements upstream.Observer.
func (m *Metrics) ObserveUpstream(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		outcome = OutcomeTimeout
	case err != nil:
		outcome = OutcomeError
	}
	m.upstreamRequestsTotal.WithLabelValues(step, outcome).Inc()
	m.upstreamDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ upstream.Observer = (*Metrics)(nil)
