package repository

import (
	"context"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// IntegrationsRepository provides data access to per-tenant provider
// credentials and health. One row per (tenant, provider).
type IntegrationsRepository interface {
	// Get returns nil (no error) when the tenant has no row for the provider.
	Get(ctx context.Context, tenantID, provider string) (*domain.ProviderIntegration, error)

	// Upsert writes credentials/config and flips status to connected.
	Upsert(ctx context.Context, pi *domain.ProviderIntegration) error

	SetStatus(ctx context.Context, tenantID, provider, status, lastError string) error

	// RecordHealth clears last_error and stamps last_sync_at on success, or
	// stores the error text on failure. Used by the retry wrapper after
	// every outbound call.
	RecordHealth(ctx context.Context, tenantID, provider string, callErr error) error

	// SetAccessToken persists a refreshed OAuth access token atomically.
	SetAccessToken(ctx context.Context, tenantID, provider, accessToken string, expiry time.Time) error

	SetRootFolder(ctx context.Context, tenantID, provider, folderID string) error

	// ListConnected returns every tenant's integration row for a provider
	// with status=connected, for the sync scheduler.
	ListConnected(ctx context.Context, provider string) ([]*domain.ProviderIntegration, error)

	// Disconnect clears tokens and marks the row disconnected (manual revoke).
	Disconnect(ctx context.Context, tenantID, provider string) error
}
