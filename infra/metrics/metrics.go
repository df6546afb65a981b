// Package metrics holds the Prometheus collectors of the realtime hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "realtime_hub"

type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec
	Disconnects       *prometheus.CounterVec
	Upgrades          *prometheus.CounterVec
	ControlMessages   *prometheus.CounterVec
	Dispatches        *prometheus.CounterVec
	Missed            *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var Module = fx.Module("metrics",
	fx.Provide(func() *Metrics { return New(prometheus.NewRegistry()) }),
)

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Live realtime connections.",
		}),
		ConnectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections accepted, by negotiated transport.",
		}, []string{"transport"}),
		Disconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Destroyed connections, by reason.",
		}, []string{"reason"}),
		Upgrades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_upgrades_total",
			Help:      "Transport upgrades, by source and target transport.",
		}, []string{"from", "to"}),
		ControlMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Inbound control messages, by event and outcome.",
		}, []string{"event", "outcome"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatcher calls, by target kind and result.",
		}, []string{"target", "result"}),
		Missed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missed_notifications_total",
			Help:      "Dispatches that reached no subscriber, by role.",
		}, []string{"role"}),
		gatherer: reg,
	}
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
