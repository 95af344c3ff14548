package httpapi

import (
	"net/http"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

// DriveHandler exposes the drive OAuth flow, folder provisioning,
// templates and the sync cron trigger.
type DriveHandler struct {
	drive  *service.DriveService
	sync   *service.SyncService
	logger *zap.Logger
}

func NewDriveHandler(drive *service.DriveService, sync *service.SyncService, logger *zap.Logger) *DriveHandler {
	return &DriveHandler{drive: drive, sync: sync, logger: logger}
}

// GET /api/integrations/drive/auth
func (h *DriveHandler) Auth(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	url, err := h.drive.BeginOAuth(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"auth_url": url}))
}

// GET /api/integrations/drive/callback?code=...&state={tenant_id}
// Gate-exempt: the browser arrives here without headers.
func (h *DriveHandler) Callback(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("missing state"))
		return
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeJSON(w, http.StatusBadRequest, Fail("authorization denied: "+errMsg))
		return
	}

	if err := h.drive.FinishOAuth(r.Context(), tenantID, code); err != nil {
		h.logger.Warn("drive oauth callback failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"connected": true}))
}

// POST /api/integrations/drive/provision
func (h *DriveHandler) Provision(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req service.ProvisionRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	folderID, err := h.drive.ProvisionFolder(r.Context(), tenantID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"folder_id": folderID}))
}

// GET+POST /api/integrations/drive/templates
func (h *DriveHandler) Templates(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	switch r.Method {
	case http.MethodGet:
		templates, err := h.drive.ListTemplates(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if templates == nil {
			templates = []*domain.DriveFolderTemplate{}
		}
		writeJSON(w, http.StatusOK, Ok(templates))
	case http.MethodPost:
		var req struct {
			Name          string              `json:"name"`
			StructureText string              `json:"structure_text,omitempty"`
			Structure     []domain.FolderNode `json:"structure,omitempty"`
		}
		if err := readBodyJSON(r, 1<<20, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
			return
		}
		template, err := h.drive.CreateTemplate(r.Context(), tenantID, req.Name, req.StructureText, req.Structure)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(template))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// GET|POST /api/cron/drive-sync
// Gate-exempt: invoked by the scheduler, not a tenant.
func (h *DriveHandler) CronSync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sync.Run(r.Context())
	if err != nil {
		h.logger.Error("drive sync run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("sync failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}
