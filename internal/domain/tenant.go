package domain

import (
	"encoding/json"
	"time"
)

// Tenant payment lifecycle states. Transitions are applied only by the
// lifecycle controller; handlers never write payment_status directly.
const (
	PaymentStatusTrial     = "trial"
	PaymentStatusPending   = "pending"
	PaymentStatusActive    = "active"
	PaymentStatusOverdue   = "overdue"
	PaymentStatusSuspended = "suspended"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusCourtesy  = "courtesy"
)

// Tenant is an isolated customer organization, the access-control boundary
// for every entity in the system.
type Tenant struct {
	ID            string `json:"tenant_id"`
	Name          string `json:"name"`
	Document      string `json:"document"`
	Plan          string `json:"plan"`
	PaymentStatus string `json:"payment_status"`

	TrialStart   *time.Time `json:"trial_start,omitempty"`
	TrialEnd     *time.Time `json:"trial_end,omitempty"`
	NextDueDate  *time.Time `json:"next_due_date,omitempty"`
	OverdueSince *time.Time `json:"overdue_since,omitempty"`

	PlatformDisabled bool `json:"platform_disabled"`

	ProviderCustomerID     string `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string `json:"provider_subscription_id,omitempty"`

	FeatureFlags             map[string]bool `json:"feature_flags,omitempty"`
	AllowedGlobalTemplateIDs []string        `json:"allowed_global_template_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeatureFlagsJSON marshals the flag map for the JSONB column, defaulting to {}.
func (t *Tenant) FeatureFlagsJSON() []byte {
	if t.FeatureFlags == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(t.FeatureFlags)
	if err != nil {
		return []byte("{}")
	}
	return b
}
