// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// Flow names for metrics and spans.
const (
	FlowLogin          = "login"
	FlowRegister       = "register"
	FlowLogout         = "logout"
	FlowForgotPassword = "forgot_password"
	FlowResetPassword  = "reset_password"
)

// Outcome constants for flow metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeDeclined = "declined"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// FlowResults counts completed auth flows.
// Use RegisterMetrics to register this with a Prometheus registry.
var FlowResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "turnstile_auth_flows_total",
		Help: "Total number of auth flows by flow and outcome",
	},
	[]string{"flow", "outcome"},
)

// ResetTokensPurged counts reset ledger entries removed by the purge worker.
var ResetTokensPurged = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "turnstile_reset_tokens_purged_total",
		Help: "Total number of expired password reset tokens purged",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(FlowResults, ResetTokensPurged)
}

// RecordFlow increments the flow counter.
func RecordFlow(flow, outcome string) {
	FlowResults.WithLabelValues(flow, outcome).Inc()
}

// flowOutcome classifies a flow result. ok is the flow's boolean result, or
// true for flows that only signal through err.
func flowOutcome(ok bool, err error) string {
	switch {
	case err == nil && ok:
		return OutcomeSuccess
	case err == nil:
		return OutcomeDeclined
	case IsDomainError(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// IsDomainError reports whether err is an expected rejection rather than a
// failure of the system.
func IsDomainError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	switch oopsErr.Code() {
	case CodeNotAuthenticated, CodeInvalidCredentials, CodeAccountNotActive,
		CodeAccountDeactivated, CodeValidationFailed:
		return true
	default:
		return false
	}
}
