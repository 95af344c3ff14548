package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

func TestApplyBillingEvent(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	overdueStart := now.Add(-48 * time.Hour)

	t.Run("payment confirmed activates and clears overdue", func(t *testing.T) {
		tenant := &domain.Tenant{
			PaymentStatus:    domain.PaymentStatusOverdue,
			OverdueSince:     &overdueStart,
			PlatformDisabled: true,
		}
		state, changed := ApplyBillingEvent(tenant, domain.EventPaymentConfirmed, now)
		require.True(t, changed)
		assert.Equal(t, domain.PaymentStatusActive, state.PaymentStatus)
		assert.Nil(t, state.OverdueSince)
		assert.False(t, state.PlatformDisabled)
	})

	t.Run("overdue stamps overdue_since once", func(t *testing.T) {
		tenant := &domain.Tenant{PaymentStatus: domain.PaymentStatusActive}
		state, changed := ApplyBillingEvent(tenant, domain.EventPaymentOverdue, now)
		require.True(t, changed)
		assert.Equal(t, domain.PaymentStatusOverdue, state.PaymentStatus)
		require.NotNil(t, state.OverdueSince)
		assert.Equal(t, now, *state.OverdueSince)

		// A second overdue event keeps the original timestamp.
		tenant.PaymentStatus = state.PaymentStatus
		tenant.OverdueSince = state.OverdueSince
		later, _ := ApplyBillingEvent(tenant, domain.EventPaymentOverdue, now.Add(time.Hour))
		assert.Equal(t, now, *later.OverdueSince)
	})

	t.Run("refund moves to pending", func(t *testing.T) {
		tenant := &domain.Tenant{PaymentStatus: domain.PaymentStatusActive}
		state, changed := ApplyBillingEvent(tenant, domain.EventPaymentRefunded, now)
		require.True(t, changed)
		assert.Equal(t, domain.PaymentStatusPending, state.PaymentStatus)
	})

	t.Run("subscription deletion cancels and disables", func(t *testing.T) {
		tenant := &domain.Tenant{PaymentStatus: domain.PaymentStatusActive}
		state, changed := ApplyBillingEvent(tenant, domain.EventSubscriptionDeleted, now)
		require.True(t, changed)
		assert.Equal(t, domain.PaymentStatusCancelled, state.PaymentStatus)
		assert.True(t, state.PlatformDisabled)
	})

	t.Run("unknown event is a no-op", func(t *testing.T) {
		tenant := &domain.Tenant{PaymentStatus: domain.PaymentStatusActive}
		_, changed := ApplyBillingEvent(tenant, "PAYMENT_UPDATED", now)
		assert.False(t, changed)
	})
}

func TestEvaluateGate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("active passes", func(t *testing.T) {
		d := EvaluateGate(&domain.Tenant{PaymentStatus: domain.PaymentStatusActive}, now)
		assert.True(t, d.Allowed)
	})

	t.Run("courtesy bypasses the overdue rule", func(t *testing.T) {
		since := now.Add(-60 * 24 * time.Hour)
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus: domain.PaymentStatusCourtesy,
			OverdueSince:  &since,
		}, now)
		assert.True(t, d.Allowed)
	})

	t.Run("platform disabled blocks even courtesy", func(t *testing.T) {
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus:    domain.PaymentStatusCourtesy,
			PlatformDisabled: true,
		}, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, GateReasonManual, d.Reason)
	})

	t.Run("platform disabled blocks", func(t *testing.T) {
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus:    domain.PaymentStatusActive,
			PlatformDisabled: true,
		}, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, GateReasonManual, d.Reason)
	})

	t.Run("trial within window passes", func(t *testing.T) {
		end := now.Add(24 * time.Hour)
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus: domain.PaymentStatusTrial,
			TrialEnd:      &end,
		}, now)
		assert.True(t, d.Allowed)
	})

	t.Run("expired trial blocks", func(t *testing.T) {
		end := now.Add(-time.Hour)
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus: domain.PaymentStatusTrial,
			TrialEnd:      &end,
		}, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, GateReasonTrialExpired, d.Reason)
	})

	t.Run("overdue within grace passes", func(t *testing.T) {
		since := now.Add(-10 * 24 * time.Hour)
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus: domain.PaymentStatusOverdue,
			OverdueSince:  &since,
		}, now)
		assert.True(t, d.Allowed)
	})

	t.Run("overdue past grace blocks", func(t *testing.T) {
		since := now.Add(-31 * 24 * time.Hour)
		d := EvaluateGate(&domain.Tenant{
			PaymentStatus: domain.PaymentStatusOverdue,
			OverdueSince:  &since,
		}, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, GateReasonOverdue, d.Reason)
	})

	t.Run("cancelled blocks", func(t *testing.T) {
		d := EvaluateGate(&domain.Tenant{PaymentStatus: domain.PaymentStatusCancelled}, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, GateReasonManual, d.Reason)
	})

	t.Run("suspended blocks", func(t *testing.T) {
		d := EvaluateGate(&domain.Tenant{PaymentStatus: domain.PaymentStatusSuspended}, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, GateReasonManual, d.Reason)
	})
}

func TestGateExemptPath(t *testing.T) {
	recovery := []string{"/api/billing/checkout", "/api/billing/invoices"}

	assert.True(t, GateExemptPath("/api/webhooks/zapi/t1", recovery))
	assert.True(t, GateExemptPath("/api/webhooks/asaas/t1", recovery))
	assert.True(t, GateExemptPath("/api/integrations/drive/callback", recovery))
	assert.True(t, GateExemptPath("/api/cron/drive-sync", recovery))
	assert.True(t, GateExemptPath("/api/billing/checkout", recovery))
	assert.True(t, GateExemptPath("/health", recovery))

	assert.False(t, GateExemptPath("/api/whatsapp/send", recovery))
	assert.False(t, GateExemptPath("/api/integrations/drive/provision", recovery))
}
