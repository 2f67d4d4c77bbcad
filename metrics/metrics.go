// Package metrics exposes Prometheus counters for job outcomes and
// connection health, served on the web UI's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the agent's Prometheus metrics on a private
// registry, so tests can create collectors freely.
type Collector struct {
	registry *prometheus.Registry

	jobsProcessed *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	connected     *prometheus.GaugeVec
}

// NewCollector creates and registers the agent metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "print_agent_jobs_total",
			Help: "Print jobs processed, by device and outcome status",
		}, []string{"device", "status"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "print_agent_reconnects_total",
			Help: "Reconnection attempts to the SaaS, by device",
		}, []string{"device"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "print_agent_connected",
			Help: "1 while the device connection is established",
		}, []string{"device"}),
	}
	c.registry.MustRegister(c.jobsProcessed, c.reconnects, c.connected)
	return c
}

// JobProcessed counts one job outcome ("done" or "error").
func (c *Collector) JobProcessed(device, status string) {
	c.jobsProcessed.WithLabelValues(device, status).Inc()
}

// Reconnect counts one reconnection attempt.
func (c *Collector) Reconnect(device string) {
	c.reconnects.WithLabelValues(device).Inc()
}

// SetConnected records whether the device connection is up.
func (c *Collector) SetConnected(device string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	c.connected.WithLabelValues(device).Set(v)
}

// Handler serves the metrics in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
