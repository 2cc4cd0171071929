package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reciapp_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DispatchEventsTotal counts dispatch events pushed, by event type.
	DispatchEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reciapp_dispatch_events_total",
		Help: "Total dispatch events pushed by type",
	}, []string{"event_type"})

	// ClaimAttemptsTotal counts claim arbitration outcomes.
	ClaimAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reciapp_claim_attempts_total",
		Help: "Total claim attempts by outcome (won, conflict)",
	}, []string{"outcome"})

	// WebSocketConnectionsTotal is the gauge of active dispatch sessions.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reciapp_websocket_connections_total",
		Help: "Total number of active WebSocket sessions",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reciapp_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// LocationTicksTotal counts relayed and dropped location ticks.
	LocationTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reciapp_location_ticks_total",
		Help: "Location ticks by outcome (relayed, stale, unauthorized)",
	}, []string{"outcome"})
)
