package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps the standard library mux; no third-party routing needed
// for a surface this size.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodsOnly(h http.HandlerFunc, methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RegisterWebhookRoutes registers the provider callback endpoints.
func (r *Router) RegisterWebhookRoutes(h *WebhookHandler) {
	r.Handle("/api/webhooks/zapi/", methodOnly(http.MethodPost, h.Zapi))
	r.Handle("/api/webhooks/asaas/", methodOnly(http.MethodPost, h.Asaas))
}

// RegisterMessagingRoutes registers the WhatsApp surface.
func (r *Router) RegisterMessagingRoutes(h *MessagingHandler) {
	r.Handle("/api/whatsapp/send", methodOnly(http.MethodPost, h.Send))
	r.Handle("/api/whatsapp/conversations", methodOnly(http.MethodGet, h.Conversations))
	r.Handle("/api/whatsapp/history", methodOnly(http.MethodGet, h.History))
	r.Handle("/api/whatsapp/mark-read", methodOnly(http.MethodPost, h.MarkRead))
	r.Handle("/api/whatsapp/convert", methodOnly(http.MethodPost, h.Convert))
	r.Handle("/api/whatsapp/sync-profile", methodOnly(http.MethodPost, h.SyncProfile))
	r.Handle("/api/whatsapp/setup-webhook", methodOnly(http.MethodPost, h.SetupWebhook))
}

// RegisterBillingRoutes registers checkout and invoices.
func (r *Router) RegisterBillingRoutes(h *BillingHandler) {
	r.Handle("/api/billing/checkout", methodOnly(http.MethodPost, h.Checkout))
	r.Handle("/api/billing/cancel", methodOnly(http.MethodPost, h.Cancel))
	r.Handle("/api/billing/charges", methodOnly(http.MethodPost, h.CreateCharge))
	r.Handle("/api/billing/charges/cancel", methodOnly(http.MethodPost, h.CancelCharge))
	r.Handle("/api/billing/invoices", methodOnly(http.MethodGet, h.Invoices))
	r.Handle("/api/billing/register-webhook", methodOnly(http.MethodPost, h.RegisterWebhook))
}

// RegisterDriveRoutes registers the drive OAuth flow, provisioning,
// templates and the cron trigger.
func (r *Router) RegisterDriveRoutes(h *DriveHandler) {
	r.Handle("/api/integrations/drive/auth", methodOnly(http.MethodGet, h.Auth))
	r.Handle("/api/integrations/drive/callback", methodOnly(http.MethodGet, h.Callback))
	r.Handle("/api/integrations/drive/provision", methodOnly(http.MethodPost, h.Provision))
	r.Handle("/api/integrations/drive/templates", h.Templates)
	// Cron schedulers fire plain GETs; POST stays for manual triggers.
	r.Handle("/api/cron/drive-sync", methodsOnly(h.CronSync, http.MethodGet, http.MethodPost))
}

// RegisterIntegrationRoutes registers credential management and probes.
func (r *Router) RegisterIntegrationRoutes(h *IntegrationHandler) {
	for _, provider := range []string{"messaging", "billing"} {
		r.Handle("/api/integrations/"+provider+"/config", h.Config)
		r.Handle("/api/integrations/"+provider+"/test", methodOnly(http.MethodPost, h.Test))
	}
	r.Handle("/api/integrations/drive/config", h.Config)
	r.Handle("/api/integrations/drive/test", methodOnly(http.MethodPost, h.Test))
}

// RegisterOpsRoutes registers health and maintenance endpoints.
func (r *Router) RegisterOpsRoutes(h *OpsHandler) {
	r.Handle("/health", methodOnly(http.MethodGet, h.Health))
	r.Handle("/api/cron/expire-trials", methodOnly(http.MethodPost, h.ExpireTrials))
	r.Handle("/api/contacts/backfill", methodOnly(http.MethodPost, h.BackfillContacts))
}
