package service

import (
	"strings"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"
)

// overdueGraceDays is how long an overdue tenant keeps platform access
// before the gate blocks it.
const overdueGraceDays = 30

// ApplyBillingEvent maps a gateway event onto the tenant's lifecycle
// columns. Pure: callers persist the returned state. The second return is
// false when the event does not change lifecycle state.
func ApplyBillingEvent(tenant *domain.Tenant, eventType string, now time.Time) (repository.LifecycleState, bool) {
	state := repository.LifecycleState{
		PaymentStatus:    tenant.PaymentStatus,
		OverdueSince:     tenant.OverdueSince,
		PlatformDisabled: tenant.PlatformDisabled,
	}

	switch eventType {
	case domain.EventPaymentConfirmed, domain.EventPaymentReceived:
		state.PaymentStatus = domain.PaymentStatusActive
		state.OverdueSince = nil
		state.PlatformDisabled = false
	case domain.EventPaymentOverdue:
		state.PaymentStatus = domain.PaymentStatusOverdue
		if state.OverdueSince == nil {
			t := now
			state.OverdueSince = &t
		}
	case domain.EventPaymentRefunded, domain.EventPaymentReversed:
		state.PaymentStatus = domain.PaymentStatusPending
	case domain.EventSubscriptionDeleted, domain.EventSubscriptionCancelled:
		state.PaymentStatus = domain.PaymentStatusCancelled
		state.PlatformDisabled = true
	default:
		return state, false
	}
	return state, true
}

// GateDecision is the outcome of an access-gate check.
type GateDecision struct {
	Allowed bool
	Reason  string
}

// Gate deny reasons. "manual" covers every operator-driven block: the
// platform_disabled flag and the suspended/cancelled states.
const (
	GateReasonTrialExpired = "trial_expired"
	GateReasonOverdue      = "overdue"
	GateReasonManual       = "manual"
)

// EvaluateGate decides whether a tenant may use the platform right now.
// Courtesy bypasses the time-based rules only, never a manual block;
// overdue tenants pass within the grace window. Pure so the policy is
// testable without a database.
func EvaluateGate(tenant *domain.Tenant, now time.Time) GateDecision {
	if tenant.PlatformDisabled {
		return GateDecision{Allowed: false, Reason: GateReasonManual}
	}
	if tenant.PaymentStatus == domain.PaymentStatusCourtesy {
		return GateDecision{Allowed: true}
	}

	switch tenant.PaymentStatus {
	case domain.PaymentStatusCancelled, domain.PaymentStatusSuspended:
		return GateDecision{Allowed: false, Reason: GateReasonManual}
	case domain.PaymentStatusTrial:
		if tenant.TrialEnd != nil && now.After(*tenant.TrialEnd) {
			return GateDecision{Allowed: false, Reason: GateReasonTrialExpired}
		}
	case domain.PaymentStatusOverdue:
		if tenant.OverdueSince != nil && now.Sub(*tenant.OverdueSince) > overdueGraceDays*24*time.Hour {
			return GateDecision{Allowed: false, Reason: GateReasonOverdue}
		}
	}
	return GateDecision{Allowed: true}
}

// GateExemptPath reports whether a request path bypasses the gate:
// inbound webhooks, the OAuth callback, cron triggers, and the configured
// recovery paths a blocked tenant still needs (checkout, invoices).
func GateExemptPath(path string, recoveryPaths []string) bool {
	exemptPrefixes := []string{
		"/api/webhooks/",
		"/api/integrations/drive/callback",
		"/api/cron/",
		"/health",
	}
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, p := range recoveryPaths {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
