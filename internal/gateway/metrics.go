package gateway

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway statistics, exported to Prometheus and mirrored in
// atomics for cheap snapshots on the admin endpoint.
type Metrics struct {
	totalConnections   atomic.Int64
	activeConnections  atomic.Int64
	eventsReceived     atomic.Int64
	eventsSent         atomic.Int64
	errors             atomic.Int64
	connectionsDropped atomic.Int64

	promActive   prometheus.Gauge
	promReceived *prometheus.CounterVec
	promSent     *prometheus.CounterVec
	promErrors   prometheus.Counter
	promDropped  prometheus.Counter
}

// NewMetrics creates gateway metrics backed by atomics only. Call
// EnablePrometheus once per process to export them.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// EnablePrometheus registers the Prometheus collectors with the default
// registry. Must be called at most once per process.
func (m *Metrics) EnablePrometheus() {
	m.promActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "Number of open websocket connections.",
	})
	m.promReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_received_total",
		Help: "Events received from clients, by type.",
	}, []string{"type"})
	m.promSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_sent_total",
		Help: "Events delivered to clients, by type.",
	}, []string{"type"})
	m.promErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Gateway errors (decode failures, handler errors, write failures).",
	})
	m.promDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_dropped_total",
		Help: "Connections dropped because their send buffer filled.",
	})
}

func (m *Metrics) ConnectionOpened() {
	m.totalConnections.Add(1)
	m.activeConnections.Add(1)
	if m.promActive != nil {
		m.promActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Add(-1)
	if m.promActive != nil {
		m.promActive.Dec()
	}
}

func (m *Metrics) ConnectionDropped() {
	m.connectionsDropped.Add(1)
	if m.promDropped != nil {
		m.promDropped.Inc()
	}
}

func (m *Metrics) EventReceived(eventType string) {
	m.eventsReceived.Add(1)
	if m.promReceived != nil {
		m.promReceived.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) EventSent(eventType string) {
	m.eventsSent.Add(1)
	if m.promSent != nil {
		m.promSent.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) Error() {
	m.errors.Add(1)
	if m.promErrors != nil {
		m.promErrors.Inc()
	}
}

// MetricsSnapshot is a point-in-time view for the admin endpoint.
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	EventsReceived     int64 `json:"events_received"`
	EventsSent         int64 `json:"events_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   m.totalConnections.Load(),
		ActiveConnections:  m.activeConnections.Load(),
		EventsReceived:     m.eventsReceived.Load(),
		EventsSent:         m.eventsSent.Load(),
		Errors:             m.errors.Load(),
		ConnectionsDropped: m.connectionsDropped.Load(),
	}
}

// String implements Stringer for MetricsSnapshot.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d events=rx:%d/tx:%d errors=%d dropped=%d",
		s.ActiveConnections, s.TotalConnections,
		s.EventsReceived, s.EventsSent,
		s.Errors, s.ConnectionsDropped,
	)
}
