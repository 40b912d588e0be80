// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several gateways can run in one
// process, as tests do.
type Collector struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	InFlight         prometheus.Gauge
}

// New registers the gateway collectors plus Go runtime and process metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Requests handled, by service, outcome and response status",
			},
			[]string{"service", "outcome", "code"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_duration_seconds",
				Help:    "Time from forwarding a request until the upstream response headers arrived",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_requests_in_flight",
				Help: "Requests currently being handled",
			},
		),
	}

	c.registry.MustRegister(
		c.Requests,
		c.UpstreamDuration,
		c.InFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRequest counts one finished request.
func (c *Collector) ObserveRequest(service, outcome string, status int) {
	if service == "" {
		service = "-"
	}
	c.Requests.WithLabelValues(service, outcome, strconv.Itoa(status)).Inc()
}

// ObserveUpstream records how long an upstream took to answer.
func (c *Collector) ObserveUpstream(service string, d time.Duration) {
	c.UpstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
