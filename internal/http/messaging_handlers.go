package httpapi

import (
	"net/http"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

// MessagingHandler exposes the WhatsApp surface.
type MessagingHandler struct {
	messaging *service.MessagingService
	logger    *zap.Logger
}

func NewMessagingHandler(messaging *service.MessagingService, logger *zap.Logger) *MessagingHandler {
	return &MessagingHandler{messaging: messaging, logger: logger}
}

// requestTenantID falls back to the header for gate-exempt paths.
func requestTenantID(r *http.Request) string {
	if id := TenantID(r); id != "" {
		return id
	}
	return r.Header.Get("X-Tenant-ID")
}

// POST /api/whatsapp/send
func (h *MessagingHandler) Send(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req service.SendRequest
	if err := readBodyJSON(r, 32<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	msg, err := h.messaging.Send(r.Context(), tenantID, &req)
	if err != nil {
		h.logger.Warn("send failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(msg))
}

// GET /api/whatsapp/conversations
func (h *MessagingHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	convs, err := h.messaging.Inbox(r.Context(), tenantID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if convs == nil {
		convs = []*domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, Ok(convs))
}

// GET /api/whatsapp/history?contact_uuid=...
func (h *MessagingHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	contactUUID := r.URL.Query().Get("contact_uuid")
	if contactUUID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("contact_uuid required"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 200)

	msgs, err := h.messaging.History(r.Context(), tenantID, contactUUID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(msgs))
}

// POST /api/whatsapp/mark-read
func (h *MessagingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req struct {
		ContactUUID string `json:"contact_uuid"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.ContactUUID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("contact_uuid required"))
		return
	}

	n, err := h.messaging.MarkRead(r.Context(), tenantID, req.ContactUUID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int64{"marked": n}))
}

// POST /api/whatsapp/convert
func (h *MessagingHandler) Convert(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req struct {
		ContactUUID string `json:"contact_uuid"`
		Name        string `json:"name"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.ContactUUID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("contact_uuid required"))
		return
	}

	lead, err := h.messaging.ConvertOrphan(r.Context(), tenantID, req.ContactUUID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(lead))
}

// POST /api/whatsapp/sync-profile
func (h *MessagingHandler) SyncProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req struct {
		ContactUUID string `json:"contact_uuid"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.ContactUUID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("contact_uuid required"))
		return
	}

	url, err := h.messaging.SyncProfile(r.Context(), tenantID, req.ContactUUID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"profile_pic_url": url}))
}

// POST /api/whatsapp/setup-webhook
func (h *MessagingHandler) SetupWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req struct {
		CallbackURL string `json:"callback_url"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.CallbackURL == "" {
		writeJSON(w, http.StatusBadRequest, Fail("callback_url required"))
		return
	}

	if err := h.messaging.SetupWebhooks(r.Context(), tenantID, req.CallbackURL); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"configured": true}))
}
