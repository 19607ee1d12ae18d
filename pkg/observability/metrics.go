// Package observability exposes the Prometheus metrics of the
// orchestrator. Collectors register on the default registry and are
// served from /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatTurnsTotal counts chat turns by flow and outcome
	// (ok / degraded / error).
	ChatTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Name:      "chat_turns_total",
		Help:      "Chat turns processed, by flow and outcome.",
	}, []string{"flow", "outcome"})

	// ChatTurnDuration observes end-to-end turn latency per flow.
	ChatTurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent",
		Name:      "chat_turn_duration_seconds",
		Help:      "End-to-end chat turn latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"flow"})

	// ToolInvocationsTotal counts tool executions by tool and success.
	ToolInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Name:      "tool_invocations_total",
		Help:      "Tool executions, by tool name and success.",
	}, []string{"tool", "success"})

	// RetrievalDuration observes vector search latency.
	RetrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agent",
		Name:      "retrieval_duration_seconds",
		Help:      "Vector retrieval latency.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
