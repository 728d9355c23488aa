// Package chat – Prometheus instrumentation for the realtime layer.
//
// Labels are kept to the event type only; room and user identifiers would be
// unbounded cardinality.
package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessionsActive gauges the number of live websocket sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Current number of connected chat sessions.",
		},
	)

	// eventsTotal counts client events by type and outcome ("ok" or a wire
	// error code).
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Total number of client chat events processed.",
		},
		[]string{"event", "outcome"},
	)

	// broadcastsTotal counts events fanned out to room members.
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broadcasts_total",
			Help: "Total number of events broadcast to room members.",
		},
		[]string{"event"},
	)

	// broadcastDrops counts deliveries skipped because a recipient's send
	// buffer was full or its session was closing. Dropped recipients catch up
	// via history replay on reconnect.
	broadcastDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_drops_total",
			Help: "Total number of per-recipient broadcast deliveries dropped.",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsActive, eventsTotal, broadcastsTotal, broadcastDrops)
}
