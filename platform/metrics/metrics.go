// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// FallbackOutcomesTotal counts each strategy attempt of a fallback chain.
	FallbackOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_strategy_outcomes_total",
			Help: "Fallback strategy attempts by chain, strategy and result",
		},
		[]string{"chain", "strategy", "result"},
	)

	// FlowTurnsTotal counts executed conversation turns.
	FlowTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_turns_total",
			Help: "Conversation turns by step kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// SyncUpdatesTotal counts lead change notifications seen by the sync engine.
	SyncUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_updates_total",
			Help: "Lead change notifications by result",
		},
		[]string{"result"},
	)

	// ChatRefreshesTotal counts full chat list refreshes.
	ChatRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_refreshes_total",
			Help: "Full chat list refreshes by trigger",
		},
		[]string{"trigger"},
	)

	// ConversationsSweptTotal counts conversations purged by the retention sweep.
	ConversationsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_swept_total",
			Help: "Conversations removed by the retention sweep",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordFallback records one strategy attempt.
func RecordFallback(chain, strategy, result string) {
	FallbackOutcomesTotal.WithLabelValues(chain, strategy, result).Inc()
}

// RecordTurn records one executed turn.
func RecordTurn(kind, outcome string) {
	FlowTurnsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSyncUpdate records a sync notification result.
func RecordSyncUpdate(result string) {
	SyncUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordChatRefresh records a full chat refresh.
func RecordChatRefresh(trigger string) {
	ChatRefreshesTotal.WithLabelValues(trigger).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
