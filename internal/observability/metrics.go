package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insureconnect_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// TokensMoved counts token ledger movements by transaction type and direction.
	TokensMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_tokens_moved_total",
		Help: "Total tokens moved through the ledger by transaction type and direction",
	}, []string{"type", "direction"})

	// LedgerOperations counts ledger debit/credit attempts and their outcome.
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_ledger_operations_total",
		Help: "Total ledger operations by kind and outcome",
	}, []string{"kind", "outcome"})

	// ModerationDecisions counts moderation transitions by resulting status.
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_moderation_decisions_total",
		Help: "Total moderation decisions by resulting post status",
	}, []string{"status"})

	// NotificationsDelivered counts notification fan-out results per channel.
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_notifications_delivered_total",
		Help: "Total notifications delivered by channel (persisted, pushed)",
	}, []string{"channel"})

	// ChatMessagesTotal counts chat messages broadcast per message type.
	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_chat_messages_total",
		Help: "Total chat messages processed by type",
	}, []string{"message_type"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insureconnect_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// RecordLedgerOperation increments the ledger operation counter and, when the
// operation succeeded, adds the absolute amount to the token movement counter.
func RecordLedgerOperation(kind, txType, outcome string, amount int) {
	LedgerOperations.WithLabelValues(kind, outcome).Inc()
	if outcome != "ok" {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	TokensMoved.WithLabelValues(txType, kind).Add(float64(amount))
}

// RecordModerationDecision increments the moderation decision counter.
func RecordModerationDecision(status string) {
	ModerationDecisions.WithLabelValues(status).Inc()
}

// RecordNotification increments the notification delivery counter for a channel.
func RecordNotification(channel string) {
	NotificationsDelivered.WithLabelValues(channel).Inc()
}

// RecordChatMessage increments the chat message counter.
func RecordChatMessage(messageType string) {
	ChatMessagesTotal.WithLabelValues(messageType).Inc()
}

// RecordWebSocketEvent increments the WebSocket events counter for the event type.
func RecordWebSocketEvent(eventType string) {
	WebSocketEventsTotal.WithLabelValues(eventType).Inc()
}
