// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Requests counts executed GraphQL operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "turnstile_graphql_requests_total",
		Help: "Total number of GraphQL operations by operation type and outcome",
	},
	[]string{"operation", "outcome"},
)

// RequestDuration observes operation latency.
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "turnstile_graphql_request_duration_seconds",
		Help:    "GraphQL operation latency by operation type",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// RegisterMetrics registers graph package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests, RequestDuration)
}

func recordRequest(operation string, ok bool, elapsed time.Duration) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	Requests.WithLabelValues(operation, outcome).Inc()
	RequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
