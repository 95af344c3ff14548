package httpapi

import (
	"net/http"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

// BillingHandler exposes subscription checkout and invoices. These paths
// are gate-exempt: a blocked tenant must still be able to pay.
type BillingHandler struct {
	billing *service.BillingService
	logger  *zap.Logger
}

func NewBillingHandler(billing *service.BillingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger}
}

// POST /api/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing X-Tenant-ID header"))
		return
	}

	var req service.CheckoutRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	result, err := h.billing.Checkout(r.Context(), tenantID, &req)
	if err != nil {
		h.logger.Warn("checkout failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// POST /api/billing/cancel
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	if err := h.billing.CancelSubscription(r.Context(), tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"cancelled": true}))
}

// POST /api/billing/charges
func (h *BillingHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing X-Tenant-ID header"))
		return
	}

	var req service.ChargeRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	record, err := h.billing.CreateCharge(r.Context(), tenantID, &req)
	if err != nil {
		h.logger.Warn("charge creation failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(record))
}

// POST /api/billing/charges/cancel
func (h *BillingHandler) CancelCharge(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.PaymentID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("payment_id required"))
		return
	}

	if err := h.billing.CancelCharge(r.Context(), tenantID, req.PaymentID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"cancelled": true}))
}

// GET /api/billing/invoices
func (h *BillingHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing X-Tenant-ID header"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 100)

	invoices, err := h.billing.Invoices(r.Context(), tenantID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if invoices == nil {
		invoices = []*domain.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(invoices))
}

// POST /api/billing/register-webhook
func (h *BillingHandler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := requestTenantID(r)

	var req struct {
		CallbackURL string `json:"callback_url"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.CallbackURL == "" {
		writeJSON(w, http.StatusBadRequest, Fail("callback_url required"))
		return
	}

	if err := h.billing.RegisterWebhook(r.Context(), tenantID, req.CallbackURL); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"configured": true}))
}
