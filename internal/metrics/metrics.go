package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	MessagesSent      *prometheus.CounterVec
	Dispatches        *prometheus.CounterVec
	TokensPruned      prometheus.Counter
	MessagesCollected prometheus.Counter
	FilesCollected    prometheus.Counter
	Connections       prometheus.Gauge
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbox_messages_sent_total",
			Help: "Messages recorded, by content kind",
		}, []string{"kind"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbox_dispatch_total",
			Help: "Delivery decisions, by path (realtime, push, none)",
		}, []string{"path"}),
		TokensPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailbox_tokens_pruned_total",
			Help: "Device tokens removed after a push failure",
		}),
		MessagesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailbox_messages_collected_total",
			Help: "Messages physically deleted once unreferenced",
		}),
		FilesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailbox_files_collected_total",
			Help: "Image files deleted once unreferenced",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailbox_ws_active_connections",
			Help: "Active websocket connections",
		}),
	}
	reg.MustRegister(m.MessagesSent, m.Dispatches, m.TokensPruned, m.MessagesCollected, m.FilesCollected, m.Connections)
	return m
}

// NewNop returns unregistered collectors, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns an http.Handler for Prometheus scraping
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
