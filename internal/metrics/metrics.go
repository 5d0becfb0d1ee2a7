// Package metrics provides Prometheus instrumentation for the room server.
// It exposes gauges for connection and presence counts, counters for message
// and signaling throughput, and a histogram for command processing latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "room_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineIdentities tracks the current number of distinct online identities.
	OnlineIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "room_online_identities",
		Help: "Current number of distinct identities with at least one connection",
	})

	// MessagesTotal counts message log operations, labeled by action:
	// "append", "edit", "delete", "react".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "room_messages_total",
		Help: "Total number of message log operations",
	}, []string{"action"})

	// CommandLatency records command processing latency in seconds.
	CommandLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "room_command_latency_seconds",
		Help:    "Inbound command processing latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})

	// CallActive tracks whether a call session is currently open (0 or 1).
	CallActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "room_call_active",
		Help: "Whether a call session is currently open",
	})

	// SignalsRelayedTotal counts relayed WebRTC signaling payloads.
	SignalsRelayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_signals_relayed_total",
		Help: "Total number of relayed WebRTC signaling payloads",
	})

	// DroppedWritesTotal counts outbound frames dropped because a
	// connection's send queue was full.
	DroppedWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_dropped_writes_total",
		Help: "Total number of outbound frames dropped due to backpressure",
	})

	// RateLimitedTotal counts commands rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_rate_limited_total",
		Help: "Total number of commands rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineIdentities,
		MessagesTotal,
		CommandLatency,
		CallActive,
		SignalsRelayedTotal,
		DroppedWritesTotal,
		RateLimitedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
