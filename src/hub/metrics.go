package hub

import (
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "monitor_socket"

// Metrics holds the Prometheus collectors for the hub. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	clientsConnected    prometheus.Gauge
	connectionsTotal    prometheus.Counter
	disconnectionsTotal *prometheus.CounterVec
	messagesQueued      *prometheus.CounterVec
	broadcastsTotal     *prometheus.CounterVec
	broadcastDuration   prometheus.Histogram
	sendDroppedTotal    prometheus.Counter
	commandErrorsTotal  *prometheus.CounterVec
	tickFailuresTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers hub metrics. It returns nil when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "client_connections_total",
			Help:      "Total client connections accepted",
		}),
		disconnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "client_disconnections_total",
			Help:      "Total client disconnections",
		}, []string{"reason"}),
		messagesQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_queued_total",
			Help:      "Outbound messages queued for clients",
		}, []string{"type"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Channel broadcasts with at least one subscriber",
		}, []string{"channel"}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_duration_seconds",
			Help:      "Time to queue a broadcast for all subscribers",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		sendDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_dropped_total",
			Help:      "Messages not queued because a client send buffer was full",
		}),
		commandErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_errors_total",
			Help:      "Inbound commands answered with an error",
		}, []string{"kind"}),
		tickFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tick_failures_total",
			Help:      "Scheduler ticks skipped because a source failed",
		}, []string{"tick"}),
	}

	reg.MustRegister(
		m.clientsConnected,
		m.connectionsTotal,
		m.disconnectionsTotal,
		m.messagesQueued,
		m.broadcastsTotal,
		m.broadcastDuration,
		m.sendDroppedTotal,
		m.commandErrorsTotal,
		m.tickFailuresTotal,
	)
	return m
}

// Attach keeps the connection gauges in step with reg.
func (m *Metrics) Attach(reg *Registry) {
	if m == nil {
		return
	}
	reg.OnAdd(func(*Client) {
		m.clientsConnected.Inc()
		m.connectionsTotal.Inc()
	})
	reg.OnRemove(func(c *Client) {
		m.clientsConnected.Dec()
		reason := c.CloseReason()
		if reason == "" {
			reason = "unknown"
		}
		m.disconnectionsTotal.WithLabelValues(reason).Inc()
	})
}

// TickFailed records a scheduler tick skipped because of a source error.
func (m *Metrics) TickFailed(tick string) {
	if m == nil {
		return
	}
	m.tickFailuresTotal.WithLabelValues(tick).Inc()
}

func (m *Metrics) messageQueued(t protocol.Type) {
	if m == nil {
		return
	}
	m.messagesQueued.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) broadcast(channel string, delivered int, d time.Duration) {
	if m == nil || delivered == 0 {
		return
	}
	m.broadcastsTotal.WithLabelValues(channel).Inc()
	m.broadcastDuration.Observe(d.Seconds())
}

func (m *Metrics) sendDropped() {
	if m == nil {
		return
	}
	m.sendDroppedTotal.Inc()
}

func (m *Metrics) commandError(kind string) {
	if m == nil {
		return
	}
	m.commandErrorsTotal.WithLabelValues(kind).Inc()
}
