package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

const maxWebhookBody = 4 << 20

// WebhookHandler ingests provider callbacks. Both endpoints answer 200
// for anything parseable so providers stop redelivering; the body says
// whether the delivery was applied or ignored.
type WebhookHandler struct {
	messaging *service.MessagingService
	billing   *service.BillingService
	logger    *zap.Logger
}

func NewWebhookHandler(messaging *service.MessagingService, billing *service.BillingService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{messaging: messaging, billing: billing, logger: logger}
}

func pathSuffix(r *http.Request, prefix string) string {
	suffix := strings.TrimPrefix(r.URL.Path, prefix)
	if suffix == "" || strings.Contains(suffix, "/") {
		return ""
	}
	return suffix
}

// POST /api/webhooks/zapi/{tenant_id}
func (h *WebhookHandler) Zapi(w http.ResponseWriter, r *http.Request) {
	tenantID := pathSuffix(r, "/api/webhooks/zapi/")
	if tenantID == "" {
		writeJSON(w, http.StatusNotFound, Fail("tenant id required"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("unreadable body"))
		return
	}

	result, err := h.messaging.HandleWebhook(r.Context(), tenantID, payload)
	if err != nil {
		h.logger.Error("messaging webhook failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("processing failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// POST /api/webhooks/asaas/{tenant_id}
func (h *WebhookHandler) Asaas(w http.ResponseWriter, r *http.Request) {
	tenantID := pathSuffix(r, "/api/webhooks/asaas/")
	if tenantID == "" {
		writeJSON(w, http.StatusNotFound, Fail("tenant id required"))
		return
	}

	if !h.billing.VerifyWebhookToken(r.Header.Get("asaas-access-token")) {
		writeJSON(w, http.StatusForbidden, Fail("invalid webhook token"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("unreadable body"))
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), tenantID, payload)
	if err != nil {
		h.logger.Error("billing webhook failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("processing failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}
