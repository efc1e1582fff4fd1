// Package metrics exposes broadcaster activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "broadcaster"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	activeConnections *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
	broadcastsTotal   *prometheus.CounterVec
	deliveriesTotal   prometheus.Counter
	deliveryFailures  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connections currently registered with the hub",
		}, []string{"transport"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of connections registered with the hub",
		}, []string{"transport"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of messages fanned out by the hub",
		}, []string{"event"}),
		deliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of message copies enqueued to connections",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of message copies that could not be enqueued",
		}, []string{"transport"}),
	}

	m.registry.MustRegister(
		m.activeConnections,
		m.connectionsTotal,
		m.broadcastsTotal,
		m.deliveriesTotal,
		m.deliveryFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ConnectionRegistered(transport string) {
	m.activeConnections.WithLabelValues(transport).Inc()
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionUnregistered(transport string) {
	m.activeConnections.WithLabelValues(transport).Dec()
}

func (m *Metrics) MessageBroadcast(event string, delivered int) {
	m.broadcastsTotal.WithLabelValues(event).Inc()
	m.deliveriesTotal.Add(float64(delivered))
}

func (m *Metrics) DeliveryFailed(transport string) {
	m.deliveryFailures.WithLabelValues(transport).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
