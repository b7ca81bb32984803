package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "passthru"

// Flow stage labels.
const (
	StageAuthorize = "authorize"
	StageCallback  = "callback"
	StageExchange  = "token"
	StageRegister  = "register"
)

// Credential middleware outcome labels.
const (
	CredentialAbsent  = "absent"
	CredentialInvalid = "invalid"
	CredentialValid   = "valid"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	FlowResults     *prometheus.CounterVec
	Credentials     *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DownstreamCalls prometheus.Gauge
	HandlesReleased prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FlowResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_results_total",
			Help:      "Authorization flow stage outcomes by error code.",
		}, []string{"stage", "result"}),
		Credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_checks_total",
			Help:      "Bearer credential checks by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		DownstreamCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downstream_calls_in_flight",
			Help:      "Blocking downstream calls currently running.",
		}),
		HandlesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_handles_released_total",
			Help:      "Request scoped service handles released.",
		}),
	}
	m.registry.MustRegister(
		m.FlowResults,
		m.Credentials,
		m.HTTPRequests,
		m.RequestDuration,
		m.DownstreamCalls,
		m.HandlesReleased,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
