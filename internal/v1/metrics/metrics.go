package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the signaling service.
//
// Naming convention: namespace_subsystem_name
// - namespace: signaling (application-level grouping)
// - subsystem: websocket, room, delivery, turn (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, peers, pending deliveries)
// - Counter: Cumulative events (messages processed, retries, expiries)
// - Histogram: Latency distributions (message processing time)

var (
	// ActiveWebSocketConnections tracks the current number of attached sockets.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live room actors.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPeers tracks the number of connected peers per room.
	RoomPeers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "peers_connected",
		Help:      "Number of connected peers in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks processed client messages by type and outcome.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks time spent handling client messages.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// PendingDeliveries tracks unacknowledged signaling deliveries per room.
	PendingDeliveries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "delivery",
		Name:      "pending",
		Help:      "Number of pending signaling deliveries per room",
	}, []string{"room_id"})

	// DeliveryRetries counts redelivery attempts made by the maintenance tick.
	DeliveryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "delivery",
		Name:      "retries_total",
		Help:      "Total delivery retry attempts",
	})

	// DeliveriesExpired counts deliveries dropped by age or attempt budget.
	DeliveriesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "delivery",
		Name:      "expired_total",
		Help:      "Total deliveries dropped unconfirmed",
	})

	// TurnCredentialsIssued counts successful TURN credential mints.
	TurnCredentialsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "turn",
		Name:      "credentials_issued_total",
		Help:      "Total ephemeral TURN credential pairs issued",
	})

	// RateLimitExceeded counts rejected requests by endpoint and key scope.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"endpoint", "scope"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
