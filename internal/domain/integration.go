package domain

import (
	"encoding/json"
	"time"
)

// Integration providers.
const (
	ProviderMessaging = "messaging"
	ProviderBilling   = "billing"
	ProviderDrive     = "drive"
)

// Integration connection states.
const (
	IntegrationConnected    = "connected"
	IntegrationDisconnected = "disconnected"
	IntegrationError        = "error"
)

// ProviderIntegration holds one tenant's credentials and health for one
// external provider. At most one row per (tenant_id, provider).
type ProviderIntegration struct {
	TenantID string `json:"tenant_id"`
	Provider string `json:"provider"`

	Config json.RawMessage `json:"config,omitempty"`
	APIKey string          `json:"-"`

	OAuthRefreshTokenEncrypted string     `json:"-"`
	OAuthAccessToken           string     `json:"-"`
	TokenExpiry                *time.Time `json:"token_expiry,omitempty"`

	Status       string     `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	RootFolderID string     `json:"root_folder_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigMap decodes the opaque config column, returning an empty map when unset.
func (pi *ProviderIntegration) ConfigMap() map[string]string {
	out := map[string]string{}
	if len(pi.Config) == 0 {
		return out
	}
	_ = json.Unmarshal(pi.Config, &out)
	return out
}
