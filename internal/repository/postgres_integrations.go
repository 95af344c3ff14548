package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// PostgresIntegrationsRepository is the Postgres implementation of IntegrationsRepository.
type PostgresIntegrationsRepository struct {
	db *sql.DB
}

func NewPostgresIntegrationsRepository(db *sql.DB) *PostgresIntegrationsRepository {
	return &PostgresIntegrationsRepository{db: db}
}

var _ IntegrationsRepository = (*PostgresIntegrationsRepository)(nil)

const integrationColumns = `
	tenant_id::text,
	provider,
	COALESCE(config, '{}'::jsonb) as config,
	COALESCE(api_key, '') as api_key,
	COALESCE(oauth_refresh_token_encrypted, '') as oauth_refresh_token_encrypted,
	COALESCE(oauth_access_token, '') as oauth_access_token,
	token_expiry,
	status,
	COALESCE(last_error, '') as last_error,
	last_sync_at,
	COALESCE(root_folder_id, '') as root_folder_id,
	updated_at`

func scanIntegration(row interface{ Scan(...any) error }) (*domain.ProviderIntegration, error) {
	var pi domain.ProviderIntegration
	var configRaw json.RawMessage
	err := row.Scan(
		&pi.TenantID,
		&pi.Provider,
		&configRaw,
		&pi.APIKey,
		&pi.OAuthRefreshTokenEncrypted,
		&pi.OAuthAccessToken,
		&pi.TokenExpiry,
		&pi.Status,
		&pi.LastError,
		&pi.LastSyncAt,
		&pi.RootFolderID,
		&pi.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pi.Config = configRaw
	return &pi, nil
}

func (r *PostgresIntegrationsRepository) Get(ctx context.Context, tenantID, provider string) (*domain.ProviderIntegration, error) {
	query := `SELECT ` + integrationColumns + `
		FROM provider_integrations
		WHERE tenant_id = $1::uuid AND provider = $2`

	pi, err := scanIntegration(r.db.QueryRowContext(ctx, query, tenantID, provider))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return pi, nil
}

func (r *PostgresIntegrationsRepository) Upsert(ctx context.Context, pi *domain.ProviderIntegration) error {
	config := pi.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	query := `
		INSERT INTO provider_integrations
			(tenant_id, provider, config, api_key, oauth_refresh_token_encrypted, oauth_access_token, token_expiry, status, last_error, root_folder_id, updated_at)
		VALUES ($1::uuid, $2, $3::jsonb, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, 'connected', NULL, NULLIF($8, ''), now())
		ON CONFLICT (tenant_id, provider)
		DO UPDATE SET config = EXCLUDED.config,
		              api_key = COALESCE(EXCLUDED.api_key, provider_integrations.api_key),
		              oauth_refresh_token_encrypted = COALESCE(EXCLUDED.oauth_refresh_token_encrypted, provider_integrations.oauth_refresh_token_encrypted),
		              oauth_access_token = COALESCE(EXCLUDED.oauth_access_token, provider_integrations.oauth_access_token),
		              token_expiry = COALESCE(EXCLUDED.token_expiry, provider_integrations.token_expiry),
		              status = 'connected',
		              last_error = NULL,
		              root_folder_id = COALESCE(EXCLUDED.root_folder_id, provider_integrations.root_folder_id),
		              updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query,
		pi.TenantID, pi.Provider, string(config), pi.APIKey,
		pi.OAuthRefreshTokenEncrypted, pi.OAuthAccessToken, pi.TokenExpiry, pi.RootFolderID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

func (r *PostgresIntegrationsRepository) SetStatus(ctx context.Context, tenantID, provider, status, lastError string) error {
	query := `
		UPDATE provider_integrations
		SET status = $3, last_error = NULLIF($4, ''), updated_at = now()
		WHERE tenant_id = $1::uuid AND provider = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, provider, status, lastError); err != nil {
		return fmt.Errorf("failed to set integration status: %w", err)
	}
	return nil
}

func (r *PostgresIntegrationsRepository) RecordHealth(ctx context.Context, tenantID, provider string, callErr error) error {
	if callErr != nil {
		query := `
			UPDATE provider_integrations
			SET last_error = $3, updated_at = now()
			WHERE tenant_id = $1::uuid AND provider = $2
		`
		if _, err := r.db.ExecContext(ctx, query, tenantID, provider, callErr.Error()); err != nil {
			return fmt.Errorf("failed to record integration error: %w", err)
		}
		return nil
	}
	query := `
		UPDATE provider_integrations
		SET last_error = NULL, last_sync_at = now(), updated_at = now()
		WHERE tenant_id = $1::uuid AND provider = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, provider); err != nil {
		return fmt.Errorf("failed to record integration health: %w", err)
	}
	return nil
}

func (r *PostgresIntegrationsRepository) SetAccessToken(ctx context.Context, tenantID, provider, accessToken string, expiry time.Time) error {
	query := `
		UPDATE provider_integrations
		SET oauth_access_token = $3, token_expiry = $4, updated_at = now()
		WHERE tenant_id = $1::uuid AND provider = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, provider, accessToken, expiry); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

func (r *PostgresIntegrationsRepository) SetRootFolder(ctx context.Context, tenantID, provider, folderID string) error {
	query := `
		UPDATE provider_integrations
		SET root_folder_id = $3, updated_at = now()
		WHERE tenant_id = $1::uuid AND provider = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, provider, folderID); err != nil {
		return fmt.Errorf("failed to set root folder: %w", err)
	}
	return nil
}

func (r *PostgresIntegrationsRepository) ListConnected(ctx context.Context, provider string) ([]*domain.ProviderIntegration, error) {
	query := `SELECT ` + integrationColumns + `
		FROM provider_integrations
		WHERE provider = $1 AND status = 'connected'
		ORDER BY tenant_id`

	rows, err := r.db.QueryContext(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected integrations: %w", err)
	}
	defer rows.Close()

	var out []*domain.ProviderIntegration
	for rows.Next() {
		pi, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		out = append(out, pi)
	}
	return out, rows.Err()
}

func (r *PostgresIntegrationsRepository) Disconnect(ctx context.Context, tenantID, provider string) error {
	query := `
		UPDATE provider_integrations
		SET status = 'disconnected',
		    oauth_access_token = NULL,
		    oauth_refresh_token_encrypted = NULL,
		    token_expiry = NULL,
		    updated_at = now()
		WHERE tenant_id = $1::uuid AND provider = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, provider); err != nil {
		return fmt.Errorf("failed to disconnect integration: %w", err)
	}
	return nil
}
