// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_api_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Approval workflow
var (
	ApprovalRequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_approval_requests_created_total",
			Help: "Approval requests created, by type.",
		},
		[]string{"type"},
	)

	ApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_approval_decisions_total",
			Help: "Approval requests decided, by type and resulting status.",
		},
		[]string{"type", "status"},
	)

	SequenceOverrides = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_sequence_overrides_total",
			Help: "Sequence overrides on approved machines that forced re-approval.",
		},
	)
)

// Sequences
var (
	SequencesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_sequences_issued_total",
			Help: "Sequence numbers issued, by resolution (exact or fallback).",
		},
		[]string{"resolution"},
	)

	SequenceCollisionWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_sequence_reset_collision_warnings_total",
			Help: "Counter resets that may reissue already used numbers.",
		},
	)
)

// Notifications
var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_total",
			Help: "Notifications dispatched, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_websocket_clients",
			Help: "Connected websocket clients.",
		},
	)
)
