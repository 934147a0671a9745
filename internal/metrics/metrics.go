package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the identity operations. Every counter carries a result
// label (success/failure) so dashboards can alert on failure ratios.
var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_logins_total",
		Help: "Local login attempts by result",
	}, []string{"result"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_registrations_total",
		Help: "Account registrations by role and result",
	}, []string{"role", "result"})

	FederatedLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_federated_logins_total",
		Help: "Federated login attempts by result",
	}, []string{"result"})

	PasswordResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_password_resets_total",
		Help: "Password reset redemptions by result",
	}, []string{"result"})

	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_moderation_actions_total",
		Help: "Admin moderation actions by target status",
	}, []string{"status"})
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
