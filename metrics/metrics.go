// Package metrics exposes prometheus collectors for dispatch outcomes and
// HTTP traffic on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	dispatch *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaygate",
			Name:      "dispatch_total",
			Help:      "Backend commands sent, by command and reply outcome.",
		}, []string{"command", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relaygate",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from sending a command to receiving its reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaygate",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatch,
		m.latency,
		m.requests,
	)
	return m
}

// ObserveDispatch implements transport.Observer.
func (m *Metrics) ObserveDispatch(command, outcome string, elapsed time.Duration) {
	m.dispatch.WithLabelValues(command, outcome).Inc()
	m.latency.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveRequest counts one served HTTP request. route is the route pattern,
// not the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
