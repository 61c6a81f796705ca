// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package access

import "github.com/prometheus/client_golang/prometheus"

// Decision labels.
const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)

// Decisions counts RequireRole outcomes by parent object.
var Decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "turnstile_access_decisions_total",
		Help: "Total number of field access decisions by object and decision",
	},
	[]string{"object", "decision"},
)

// RegisterMetrics registers access metrics with reg. Panics on duplicate registration.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Decisions)
}

// RecordDecision increments the decision counter.
func RecordDecision(object, decision string) {
	Decisions.WithLabelValues(object, decision).Inc()
}
