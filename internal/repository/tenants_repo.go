package repository

import (
	"context"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// LifecycleState is the writable slice of a tenant the lifecycle controller
// owns: payment status, overdue marker and the platform block flag.
type LifecycleState struct {
	PaymentStatus    string
	OverdueSince     *time.Time
	PlatformDisabled bool
}

// TenantsRepository provides data access to tenants.
type TenantsRepository interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	// GetTenantByCustomerID resolves the tenant owning a billing-gateway
	// customer id. Returns nil (no error) when no tenant matches.
	GetTenantByCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error)

	// UpdateLifecycle applies a lifecycle transition outside of webhook
	// processing (webhook ingestion writes the same columns inside its own
	// transaction).
	UpdateLifecycle(ctx context.Context, tenantID string, state LifecycleState) error

	// SetBillingRefs stores the gateway customer/subscription ids created
	// during checkout.
	SetBillingRefs(ctx context.Context, tenantID, customerID, subscriptionID string, nextDue *time.Time) error

	// SetDocument updates the tenant's fiscal document (digits only).
	SetDocument(ctx context.Context, tenantID, document string) error

	// ListTrialsEndedBefore returns tenants still in trial whose trial_end
	// has passed, for the expiry sweep.
	ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Tenant, error)
}
