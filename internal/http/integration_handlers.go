package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

// IntegrationHandler manages per-tenant provider credentials and the
// connectivity probes behind the settings screen.
type IntegrationHandler struct {
	integrations repository.IntegrationsRepository
	messaging    *service.MessagingService
	billing      *service.BillingService
	drive        *service.DriveService
	logger       *zap.Logger
}

func NewIntegrationHandler(
	integrations repository.IntegrationsRepository,
	messaging *service.MessagingService,
	billing *service.BillingService,
	drive *service.DriveService,
	logger *zap.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{
		integrations: integrations,
		messaging:    messaging,
		billing:      billing,
		drive:        drive,
		logger:       logger,
	}
}

func providerFromPath(r *http.Request, action string) string {
	// /api/integrations/{provider}/{action}
	p := strings.TrimPrefix(r.URL.Path, "/api/integrations/")
	p = strings.TrimSuffix(p, "/"+action)
	switch p {
	case domain.ProviderMessaging, domain.ProviderBilling, domain.ProviderDrive:
		return p
	default:
		return ""
	}
}

// integrationView is the credential-free projection returned to clients.
type integrationView struct {
	Provider   string          `json:"provider"`
	Status     string          `json:"status"`
	LastError  string          `json:"last_error,omitempty"`
	LastSyncAt any             `json:"last_sync_at,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	HasAPIKey  bool            `json:"has_api_key"`
}

// GET+POST+DELETE /api/integrations/{provider}/config
func (h *IntegrationHandler) Config(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	provider := providerFromPath(r, "config")
	if provider == "" {
		writeJSON(w, http.StatusNotFound, Fail("unknown provider"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getConfig(w, r, tenantID, provider)
	case http.MethodPost:
		h.saveConfig(w, r, tenantID, provider)
	case http.MethodDelete:
		h.disconnect(w, r, tenantID, provider)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *IntegrationHandler) getConfig(w http.ResponseWriter, r *http.Request, tenantID, provider string) {
	pi, err := h.integrations.Get(r.Context(), tenantID, provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view := integrationView{Provider: provider, Status: domain.IntegrationDisconnected}
	if pi != nil {
		view.Status = pi.Status
		view.LastError = pi.LastError
		view.LastSyncAt = pi.LastSyncAt
		view.Config = pi.Config
		view.HasAPIKey = pi.APIKey != ""
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

func (h *IntegrationHandler) saveConfig(w http.ResponseWriter, r *http.Request, tenantID, provider string) {
	if provider == domain.ProviderDrive {
		writeJSON(w, http.StatusBadRequest, Fail("drive connects through the OAuth flow"))
		return
	}

	var req struct {
		APIKey string            `json:"api_key,omitempty"`
		Config map[string]string `json:"config,omitempty"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if req.APIKey == "" && len(req.Config) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("nothing to save"))
		return
	}

	configJSON, _ := json.Marshal(req.Config)
	pi := &domain.ProviderIntegration{
		TenantID: tenantID,
		Provider: provider,
		APIKey:   req.APIKey,
		Config:   configJSON,
	}
	if err := h.integrations.Upsert(r.Context(), pi); err != nil {
		writeServiceError(w, err)
		return
	}
	h.logger.Info("integration configured",
		zap.String("tenant_id", tenantID),
		zap.String("provider", provider))
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"saved": true}))
}

func (h *IntegrationHandler) disconnect(w http.ResponseWriter, r *http.Request, tenantID, provider string) {
	var err error
	if provider == domain.ProviderDrive {
		err = h.drive.Disconnect(r.Context(), tenantID)
	} else {
		err = h.integrations.Disconnect(r.Context(), tenantID, provider)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"disconnected": true}))
}

// POST /api/integrations/{provider}/test
func (h *IntegrationHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	provider := providerFromPath(r, "test")
	if provider == "" {
		writeJSON(w, http.StatusNotFound, Fail("unknown provider"))
		return
	}

	switch provider {
	case domain.ProviderMessaging:
		connected, err := h.messaging.TestConnection(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]bool{"connected": connected}))
	case domain.ProviderBilling:
		if err := h.billing.TestConnection(r.Context(), tenantID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]bool{"connected": true}))
	case domain.ProviderDrive:
		status, err := h.drive.Status(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(status))
	}
}
