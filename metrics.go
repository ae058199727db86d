package secrets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secrets_login_attempts_total",
		Help: "Login attempts by method (local, federated) and outcome",
	}, []string{"method", "outcome"})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secrets_registrations_total",
		Help: "Local registrations by outcome",
	}, []string{"outcome"})

	gateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secrets_gate_decisions_total",
		Help: "Access gate decisions (allow, deny, error)",
	}, []string{"decision"})
)
