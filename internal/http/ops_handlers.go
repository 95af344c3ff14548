package httpapi

import (
	"net/http"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

// OpsHandler covers health and the maintenance endpoints the scheduler hits.
type OpsHandler struct {
	billing  *service.BillingService
	contacts *service.ContactService
	logger   *zap.Logger
}

func NewOpsHandler(billing *service.BillingService, contacts *service.ContactService, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{billing: billing, contacts: contacts, logger: logger}
}

// GET /health
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

// POST /api/cron/expire-trials
// Gate-exempt: invoked by the scheduler.
func (h *OpsHandler) ExpireTrials(w http.ResponseWriter, r *http.Request) {
	expired, err := h.billing.ExpireTrials(r.Context())
	if err != nil {
		h.logger.Error("trial expiry sweep failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("sweep failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int{"expired": expired}))
}

// POST /api/contacts/backfill
func (h *OpsHandler) BackfillContacts(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing X-Tenant-ID header"))
		return
	}

	result, err := h.contacts.Backfill(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}
