package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// PostgresTenantsRepository is the Postgres implementation of TenantsRepository.
type PostgresTenantsRepository struct {
	db *sql.DB
}

func NewPostgresTenantsRepository(db *sql.DB) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{db: db}
}

var _ TenantsRepository = (*PostgresTenantsRepository)(nil)

const tenantColumns = `
	tenant_id::text,
	name,
	COALESCE(document, '') as document,
	plan,
	payment_status,
	trial_start,
	trial_end,
	next_due_date,
	overdue_since,
	platform_disabled,
	COALESCE(provider_customer_id, '') as provider_customer_id,
	COALESCE(provider_subscription_id, '') as provider_subscription_id,
	COALESCE(feature_flags, '{}'::jsonb) as feature_flags,
	COALESCE(allowed_global_template_ids, '[]'::jsonb) as allowed_global_template_ids,
	created_at,
	updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*domain.Tenant, error) {
	var t domain.Tenant
	var flagsRaw, templatesRaw json.RawMessage
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Document,
		&t.Plan,
		&t.PaymentStatus,
		&t.TrialStart,
		&t.TrialEnd,
		&t.NextDueDate,
		&t.OverdueSince,
		&t.PlatformDisabled,
		&t.ProviderCustomerID,
		&t.ProviderSubscriptionID,
		&flagsRaw,
		&templatesRaw,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(flagsRaw, &t.FeatureFlags)
	_ = json.Unmarshal(templatesRaw, &t.AllowedGlobalTemplateIDs)
	return &t, nil
}

func (r *PostgresTenantsRepository) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1::uuid`

	t, err := scanTenant(r.db.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

func (r *PostgresTenantsRepository) GetTenantByCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	if customerID == "" {
		return nil, nil
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE provider_customer_id = $1`

	t, err := scanTenant(r.db.QueryRowContext(ctx, query, customerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant by customer id: %w", err)
	}
	return t, nil
}

func (r *PostgresTenantsRepository) UpdateLifecycle(ctx context.Context, tenantID string, state LifecycleState) error {
	query := `
		UPDATE tenants
		SET payment_status = $2,
		    overdue_since = $3,
		    platform_disabled = $4,
		    updated_at = now()
		WHERE tenant_id = $1::uuid
	`
	res, err := r.db.ExecContext(ctx, query, tenantID, state.PaymentStatus, state.OverdueSince, state.PlatformDisabled)
	if err != nil {
		return fmt.Errorf("failed to update tenant lifecycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant not found: %s", tenantID)
	}
	return nil
}

func (r *PostgresTenantsRepository) SetBillingRefs(ctx context.Context, tenantID, customerID, subscriptionID string, nextDue *time.Time) error {
	query := `
		UPDATE tenants
		SET provider_customer_id = COALESCE(NULLIF($2, ''), provider_customer_id),
		    provider_subscription_id = COALESCE(NULLIF($3, ''), provider_subscription_id),
		    next_due_date = COALESCE($4, next_due_date),
		    updated_at = now()
		WHERE tenant_id = $1::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, customerID, subscriptionID, nextDue); err != nil {
		return fmt.Errorf("failed to set billing refs: %w", err)
	}
	return nil
}

func (r *PostgresTenantsRepository) SetDocument(ctx context.Context, tenantID, document string) error {
	query := `UPDATE tenants SET document = $2, updated_at = now() WHERE tenant_id = $1::uuid`
	if _, err := r.db.ExecContext(ctx, query, tenantID, document); err != nil {
		return fmt.Errorf("failed to set tenant document: %w", err)
	}
	return nil
}

func (r *PostgresTenantsRepository) ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + `
		FROM tenants
		WHERE payment_status = 'trial' AND trial_end IS NOT NULL AND trial_end < $1
		ORDER BY trial_end`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired trials: %w", err)
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
