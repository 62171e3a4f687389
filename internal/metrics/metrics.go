// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package metrics provides Prometheus instrumentation for the relay
// core: sessions, relayed actions, pushes, and permission store health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkrelay_sessions_active",
			Help: "Current number of active authenticated sessions",
		},
	)

	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_session_events_total",
			Help: "Total session lifecycle events",
		},
		[]string{"event"}, // "connect", "disconnect", "replace"
	)

	// Relay metrics
	RelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_relay_requests_total",
			Help: "Total relayed action requests by kind and overall code",
		},
		[]string{"kind", "code"},
	)

	RelayTargetResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_relay_target_results_total",
			Help: "Per-target relay outcomes",
		},
		[]string{"result"}, // "success", "target-offline", "permission-denied", "delivery-failed"
	)

	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkrelay_relay_duration_seconds",
			Help:    "Duration of relay request processing in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"kind"},
	)

	// Push metrics
	PushesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_pushes_sent_total",
			Help: "Server-initiated pushes by method",
		},
		[]string{"method"},
	)

	PushesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_pushes_dropped_total",
			Help: "Pushes dropped because the session send buffer was full",
		},
		[]string{"method"},
	)

	// Pairing metrics
	PairOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_pair_operations_total",
			Help: "Pairing operations by kind and outcome",
		},
		[]string{"operation", "code"}, // operation: "create", "remove", "update"
	)

	// Permission store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkrelay_store_query_duration_seconds",
			Help:    "Duration of permission store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_store_query_errors_total",
			Help: "Total permission store query errors",
		},
		[]string{"operation"},
	)

	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkrelay_store_breaker_state",
			Help: "Permission store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Auth metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_auth_attempts_total",
			Help: "Authentication attempts by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_http_requests_total",
			Help: "HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkrelay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Expiry sweeper metrics
	GrantsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkrelay_grants_expired_total",
			Help: "Total grants removed by the expiry sweeper",
		},
	)
)

// RecordRelay records one relay request: overall code, per-target
// outcomes, and processing duration.
func RecordRelay(kind, code string, results map[string]int, duration time.Duration) {
	RelayRequests.WithLabelValues(kind, code).Inc()
	RelayDuration.WithLabelValues(kind).Observe(duration.Seconds())
	for result, n := range results {
		RelayTargetResults.WithLabelValues(result).Add(float64(n))
	}
}

// RecordHTTPRequest records one HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, status).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStoreQuery records a permission store query metric.
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordPush records a push attempt; dropped marks a full send buffer.
func RecordPush(method string, dropped bool) {
	if dropped {
		PushesDropped.WithLabelValues(method).Inc()
		return
	}
	PushesSent.WithLabelValues(method).Inc()
}
