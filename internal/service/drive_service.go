package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"

	"go.uber.org/zap"
)

// tokenRefreshWindow renews access tokens this long before expiry so a
// token never dies mid-request.
const tokenRefreshWindow = 60 * time.Second

// ProvisionRequest asks for a drive folder for one lead or client.
type ProvisionRequest struct {
	LeadID     string `json:"lead_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// DriveService owns the cloud-drive integration: the OAuth grant, folder
// provisioning from templates, and token upkeep.
type DriveService struct {
	integrations repository.IntegrationsRepository
	tenants      repository.TenantsRepository
	leads        repository.LeadsRepository
	clients      repository.ClientsRepository
	drive        repository.DriveRepository
	client       *DriveClient
	caller       *ProviderCaller
	box          *SecretBox
	events       *EventPublisher
	logger       *zap.Logger
}

func NewDriveService(
	integrations repository.IntegrationsRepository,
	tenants repository.TenantsRepository,
	leads repository.LeadsRepository,
	clients repository.ClientsRepository,
	drive repository.DriveRepository,
	client *DriveClient,
	caller *ProviderCaller,
	box *SecretBox,
	events *EventPublisher,
	logger *zap.Logger,
) *DriveService {
	return &DriveService{
		integrations: integrations,
		tenants:      tenants,
		leads:        leads,
		clients:      clients,
		drive:        drive,
		client:       client,
		caller:       caller,
		box:          box,
		events:       events,
		logger:       logger,
	}
}

// BeginOAuth returns the consent URL for a tenant. The tenant id travels
// in the state parameter.
func (s *DriveService) BeginOAuth(ctx context.Context, tenantID string) (string, error) {
	if _, err := s.tenants.GetTenant(ctx, tenantID); err != nil {
		return "", err
	}
	return s.client.AuthURL(tenantID), nil
}

// FinishOAuth exchanges the callback code, seals the refresh token and
// stores the connected integration.
func (s *DriveService) FinishOAuth(ctx context.Context, tenantID, code string) error {
	if code == "" {
		return &ValidationError{Field: "code", Detail: "missing authorization code"}
	}
	token, err := s.client.Exchange(code)
	if err != nil {
		return err
	}
	if token.RefreshToken == "" {
		return &ProviderError{Provider: domain.ProviderDrive, Detail: "grant returned no refresh token"}
	}
	sealed, err := s.box.Seal(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}
	expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	pi := &domain.ProviderIntegration{
		TenantID:                   tenantID,
		Provider:                   domain.ProviderDrive,
		OAuthRefreshTokenEncrypted: sealed,
		OAuthAccessToken:           token.AccessToken,
		TokenExpiry:                &expiry,
	}
	if err := s.integrations.Upsert(ctx, pi); err != nil {
		return err
	}
	s.events.Publish(ctx, StreamDrive, "drive_connected", map[string]string{"tenant_id": tenantID})
	return nil
}

// accessToken returns a live access token for the tenant, refreshing when
// the stored one is expired or inside the refresh window. A failed
// refresh flips the integration to error: the grant is gone and the
// tenant must re-authorize.
func (s *DriveService) accessToken(ctx context.Context, tenantID string) (string, error) {
	pi, err := s.integrations.Get(ctx, tenantID, domain.ProviderDrive)
	if err != nil {
		return "", err
	}
	if pi == nil || pi.Status != domain.IntegrationConnected || pi.OAuthRefreshTokenEncrypted == "" {
		return "", &ConfigError{Provider: domain.ProviderDrive, Detail: "not connected"}
	}
	if pi.OAuthAccessToken != "" && pi.TokenExpiry != nil &&
		time.Until(*pi.TokenExpiry) > tokenRefreshWindow {
		return pi.OAuthAccessToken, nil
	}

	refreshToken, err := s.box.Open(pi.OAuthRefreshTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed refresh token: %w", err)
	}
	token, err := s.client.Refresh(refreshToken)
	if err != nil {
		if setErr := s.integrations.SetStatus(ctx, tenantID, domain.ProviderDrive,
			domain.IntegrationError, "token refresh failed: "+err.Error()); setErr != nil {
			s.logger.Error("failed to flag drive integration", zap.Error(setErr))
		}
		return "", err
	}
	expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := s.integrations.SetAccessToken(ctx, tenantID, domain.ProviderDrive, token.AccessToken, expiry); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// rootFolder returns the tenant's root folder id, creating the folder on
// first use.
func (s *DriveService) rootFolder(ctx context.Context, tenantID, accessToken string) (string, error) {
	pi, err := s.integrations.Get(ctx, tenantID, domain.ProviderDrive)
	if err != nil {
		return "", err
	}
	if pi != nil && pi.RootFolderID != "" {
		return pi.RootFolderID, nil
	}

	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	var folder *DriveFile
	err = s.caller.Call(ctx, tenantID, domain.ProviderDrive, func() error {
		var err error
		folder, err = s.client.CreateFolder(accessToken, tenant.Name, "")
		return err
	})
	if err != nil {
		return "", err
	}
	if err := s.integrations.SetRootFolder(ctx, tenantID, domain.ProviderDrive, folder.ID); err != nil {
		return "", err
	}
	return folder.ID, nil
}

// ProvisionFolder creates (or finds) a named folder for a lead or client
// and materializes the chosen template's tree inside it. Safe to call
// again: existing folders are reused, missing subfolders are filled in.
func (s *DriveService) ProvisionFolder(ctx context.Context, tenantID string, req *ProvisionRequest) (string, error) {
	if (req.LeadID == "") == (req.ClientID == "") {
		return "", &ValidationError{Detail: "exactly one of lead_id or client_id required"}
	}

	name := req.Name
	var existingFolder string
	if req.ClientID != "" {
		client, err := s.clients.GetClient(ctx, tenantID, req.ClientID)
		if err != nil {
			return "", err
		}
		if name == "" {
			name = client.Name
		}
		existingFolder = client.DriveFolderID
	} else {
		lead, err := s.leads.GetLead(ctx, tenantID, req.LeadID)
		if err != nil {
			return "", err
		}
		if name == "" {
			name = lead.Name
		}
		existingFolder = lead.DriveFolderID
	}

	accessToken, err := s.accessToken(ctx, tenantID)
	if err != nil {
		return "", err
	}

	folderID := existingFolder
	if folderID == "" {
		rootID, err := s.rootFolder(ctx, tenantID, accessToken)
		if err != nil {
			return "", err
		}
		var folder *DriveFile
		err = s.caller.Call(ctx, tenantID, domain.ProviderDrive, func() error {
			existing, err := s.client.FindChildFolder(accessToken, rootID, name)
			if err != nil {
				return err
			}
			if existing != nil {
				folder = existing
				return nil
			}
			folder, err = s.client.CreateFolder(accessToken, name, rootID)
			return err
		})
		if err != nil {
			return "", err
		}
		folderID = folder.ID
	}

	if req.TemplateID != "" {
		template, err := s.drive.GetTemplate(ctx, req.TemplateID)
		if err != nil {
			return "", err
		}
		if template == nil {
			return "", &ValidationError{Field: "template_id", Detail: "unknown template"}
		}
		if template.Scope == domain.TemplateScopeTenant && template.TenantID != tenantID {
			return "", &AuthError{Detail: "template not accessible"}
		}
		// Partial trees heal on the next provision call, so a failed
		// subfolder does not fail the whole operation.
		if err := s.CreateTree(ctx, tenantID, accessToken, folderID, template.Structure); err != nil {
			s.logger.Warn("template tree partially provisioned",
				zap.String("tenant_id", tenantID),
				zap.String("folder_id", folderID),
				zap.Error(err))
		}
	}

	if req.ClientID != "" {
		err = s.clients.SetDriveFolder(ctx, tenantID, req.ClientID, folderID)
	} else {
		err = s.leads.SetDriveFolder(ctx, tenantID, req.LeadID, folderID)
	}
	if err != nil {
		return "", err
	}

	s.events.Publish(ctx, StreamDrive, "folder_provisioned", map[string]string{
		"tenant_id": tenantID,
		"folder_id": folderID,
	})
	return folderID, nil
}

// CreateTree materializes a folder tree depth-first under parentID.
// Existing siblings are reused, so a partially-provisioned tree heals on
// the next call. A failed node is logged and skipped together with its
// children; the remaining siblings are still attempted, and the joined
// failures come back to the caller.
func (s *DriveService) CreateTree(ctx context.Context, tenantID, accessToken, parentID string, nodes []domain.FolderNode) error {
	var errs []error
	for _, node := range nodes {
		var folder *DriveFile
		err := s.caller.Call(ctx, tenantID, domain.ProviderDrive, func() error {
			existing, err := s.client.FindChildFolder(accessToken, parentID, node.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				folder = existing
				return nil
			}
			folder, err = s.client.CreateFolder(accessToken, node.Name, parentID)
			return err
		})
		if err != nil {
			s.logger.Warn("failed to create template folder",
				zap.String("tenant_id", tenantID),
				zap.String("folder", node.Name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("folder %s: %w", node.Name, err))
			continue
		}
		if len(node.Children) > 0 {
			if err := s.CreateTree(ctx, tenantID, accessToken, folder.ID, node.Children); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ListTemplates returns the templates a tenant may provision from.
func (s *DriveService) ListTemplates(ctx context.Context, tenantID string) ([]*domain.DriveFolderTemplate, error) {
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.drive.ListTemplates(ctx, tenantID, tenant.AllowedGlobalTemplateIDs)
}

// CreateTemplate stores a tenant-scoped template. Structure may arrive as
// a tree or as indentation text.
func (s *DriveService) CreateTemplate(ctx context.Context, tenantID, name, structureText string, structure []domain.FolderNode) (*domain.DriveFolderTemplate, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Detail: "name required"}
	}
	if len(structure) == 0 && structureText != "" {
		structure = ParseStructureText(structureText)
	}
	if len(structure) == 0 {
		return nil, &ValidationError{Field: "structure", Detail: "empty folder structure"}
	}
	template := &domain.DriveFolderTemplate{
		Scope:     domain.TemplateScopeTenant,
		TenantID:  tenantID,
		Name:      name,
		Structure: structure,
		Enabled:   true,
	}
	id, err := s.drive.CreateTemplate(ctx, template)
	if err != nil {
		return nil, err
	}
	template.ID = id
	return template, nil
}

// Disconnect revokes the tenant's drive integration locally.
func (s *DriveService) Disconnect(ctx context.Context, tenantID string) error {
	if err := s.integrations.Disconnect(ctx, tenantID, domain.ProviderDrive); err != nil {
		return err
	}
	s.events.Publish(ctx, StreamDrive, "drive_disconnected", map[string]string{"tenant_id": tenantID})
	return nil
}

// Status summarizes the integration row for the config endpoint; tokens
// never leave the service.
func (s *DriveService) Status(ctx context.Context, tenantID string) (json.RawMessage, error) {
	pi, err := s.integrations.Get(ctx, tenantID, domain.ProviderDrive)
	if err != nil {
		return nil, err
	}
	if pi == nil {
		pi = &domain.ProviderIntegration{
			TenantID: tenantID,
			Provider: domain.ProviderDrive,
			Status:   domain.IntegrationDisconnected,
		}
	}
	return json.Marshal(pi)
}
