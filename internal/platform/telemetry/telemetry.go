// Package telemetry exposes Prometheus metrics for the edge and the internal
// services: HTTP request metrics plus counters for every gate and ownership
// decision.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hms/hms/internal/platform/auth"
)

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics owns a registry and the HMS collectors. Each process creates one.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	activeRequests   prometheus.Gauge
	gateDecisions    *prometheus.CounterVec
	ownershipResults *prometheus.CounterVec
	lookupDuration   *prometheus.HistogramVec
}

// NewMetrics registers the HMS collectors, labelled with service, on a fresh
// registry.
func NewMetrics(service string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "hms_http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     defaultDurationBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "hms_http_active_requests",
			Help:        "Requests currently being served",
			ConstLabels: constLabels,
		}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "hms_gate_decisions_total",
			Help:        "Edge gatekeeper outcomes by terminal state",
			ConstLabels: constLabels,
		}, []string{"state", "rejected_in"}),
		ownershipResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "hms_ownership_decisions_total",
			Help:        "Ownership guard outcomes by resource kind",
			ConstLabels: constLabels,
		}, []string{"kind", "result"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "hms_owner_lookup_duration_seconds",
			Help:        "Duration of owner lookups against other services",
			Buckets:     defaultDurationBuckets,
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.activeRequests,
		m.gateDecisions,
		m.ownershipResults,
		m.lookupDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveGate counts one gatekeeper result. It matches
// auth.GatekeeperConfig.OnDecision.
func (m *Metrics) ObserveGate(r auth.GateResult) {
	m.gateDecisions.WithLabelValues(string(r.State), string(r.RejectedIn)).Inc()
}

// ObserveOwnership counts one guard decision. It matches Guard.OnDecision.
func (m *Metrics) ObserveOwnership(kind, result string) {
	m.ownershipResults.WithLabelValues(kind, result).Inc()
}

// ObserveLookup records how long an owner lookup of kind took.
func (m *Metrics) ObserveLookup(kind, outcome string, d time.Duration) {
	m.lookupDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// Middleware records request duration by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
