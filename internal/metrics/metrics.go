// Package metrics wires the mirror's observable events into Prometheus
// collectors, exposed at /metrics. The /api/stats JSON envelope does not
// read these collectors; it reports the registry's and venue client's own
// counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements book.Instrumentation, venue.Instrumentation, and
// push.Instrumentation, giving every layer of the pipeline a home for its
// counters without any of those packages importing each other.
type Metrics struct {
	diffsApplied *prometheus.CounterVec
	diffsDropped *prometheus.CounterVec
	resyncs      *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
	bootstraps   *prometheus.CounterVec
	subscribers  prometheus.Gauge
	clientsConn  prometheus.Counter
	clientsDisc  prometheus.Counter
	framesDrop   *prometheus.CounterVec
}

// New registers every collector against reg and returns the bound Metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		diffsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbook_diffs_applied_total",
			Help: "Depth-diff updates successfully applied, by symbol.",
		}, []string{"symbol"}),
		diffsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbook_diffs_dropped_total",
			Help: "Depth-diff updates dropped, by symbol and reason.",
		}, []string{"symbol", "reason"}),
		resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbook_resync_total",
			Help: "Large sequence-gap resyncs performed, by symbol.",
		}, []string{"symbol"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_reconnect_attempts_total",
			Help: "Upstream reconnect attempts, by symbol.",
		}, []string{"symbol"}),
		bootstraps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_bootstrap_completed_total",
			Help: "Snapshot-first bootstraps completed, by symbol.",
		}, []string{"symbol"}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "push_subscribers",
			Help: "Currently registered streaming subscribers.",
		}),
		clientsConn: factory.NewCounter(prometheus.CounterOpts{
			Name: "push_clients_connected_total",
			Help: "Push-surface WebSocket clients connected.",
		}),
		clientsDisc: factory.NewCounter(prometheus.CounterOpts{
			Name: "push_clients_disconnected_total",
			Help: "Push-surface WebSocket clients disconnected.",
		}),
		framesDrop: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "push_frames_dropped_total",
			Help: "Outbound frames dropped by drop-oldest backpressure, by client.",
		}, []string{"client_id"}),
	}
}

// DiffApplied implements book.Instrumentation.
func (m *Metrics) DiffApplied(symbol string) {
	m.diffsApplied.WithLabelValues(symbol).Inc()
}

// DiffDropped implements book.Instrumentation.
func (m *Metrics) DiffDropped(symbol, reason string) {
	m.diffsDropped.WithLabelValues(symbol, reason).Inc()
}

// Resync implements book.Instrumentation.
func (m *Metrics) Resync(symbol string) {
	m.resyncs.WithLabelValues(symbol).Inc()
}

// SubscriberCount implements book.Instrumentation.
func (m *Metrics) SubscriberCount(n int) {
	m.subscribers.Set(float64(n))
}

// ReconnectAttempt implements venue.Instrumentation.
func (m *Metrics) ReconnectAttempt(symbol string) {
	m.reconnects.WithLabelValues(symbol).Inc()
}

// BootstrapComplete implements venue.Instrumentation.
func (m *Metrics) BootstrapComplete(symbol string) {
	m.bootstraps.WithLabelValues(symbol).Inc()
}

// ClientConnected implements push.Instrumentation.
func (m *Metrics) ClientConnected() {
	m.clientsConn.Inc()
}

// ClientDisconnected implements push.Instrumentation.
func (m *Metrics) ClientDisconnected() {
	m.clientsDisc.Inc()
}

// FrameDropped implements push.Instrumentation.
func (m *Metrics) FrameDropped(clientID string) {
	m.framesDrop.WithLabelValues(clientID).Inc()
}
