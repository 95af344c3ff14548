package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/config"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"

	"go.uber.org/zap"
)

// CheckoutRequest opens a subscription for a tenant.
type CheckoutRequest struct {
	Value       float64 `json:"value"`
	Cycle       string  `json:"cycle,omitempty"`
	Description string  `json:"description,omitempty"`
	Document    string  `json:"document,omitempty"`
	Email       string  `json:"email,omitempty"`
}

// CheckoutResult is what the frontend needs to send the user to payment.
type CheckoutResult struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	InvoiceURL     string `json:"invoice_url,omitempty"`
}

// asaasWebhook is the billing gateway's callback envelope.
type asaasWebhook struct {
	Event   string `json:"event"`
	Payment *struct {
		ID                string  `json:"id"`
		Customer          string  `json:"customer"`
		Subscription      string  `json:"subscription,omitempty"`
		Value             float64 `json:"value"`
		Status            string  `json:"status"`
		InvoiceURL        string  `json:"invoiceUrl"`
		ExternalReference string  `json:"externalReference"`
		PaymentDate       string  `json:"paymentDate"`
	} `json:"payment,omitempty"`
	Subscription *struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
	} `json:"subscription,omitempty"`
}

// BillingService owns the billing gateway integration: customer and
// subscription provisioning, charge reconciliation, and the tenant
// payment lifecycle driven by gateway webhooks.
type BillingService struct {
	tenants      repository.TenantsRepository
	payments     repository.PaymentsRepository
	billingEvts  repository.BillingEventsRepository
	integrations repository.IntegrationsRepository
	asaas        *AsaasClient
	caller       *ProviderCaller
	events       *EventPublisher
	db           *sql.DB
	cfg          *config.BillingConfig
	logger       *zap.Logger
}

func NewBillingService(
	tenants repository.TenantsRepository,
	payments repository.PaymentsRepository,
	billingEvts repository.BillingEventsRepository,
	integrations repository.IntegrationsRepository,
	asaas *AsaasClient,
	caller *ProviderCaller,
	events *EventPublisher,
	db *sql.DB,
	cfg *config.BillingConfig,
	logger *zap.Logger,
) *BillingService {
	return &BillingService{
		tenants:      tenants,
		payments:     payments,
		billingEvts:  billingEvts,
		integrations: integrations,
		asaas:        asaas,
		caller:       caller,
		events:       events,
		db:           db,
		cfg:          cfg,
		logger:       logger,
	}
}

func (s *BillingService) apiKey(ctx context.Context, tenantID string) (string, error) {
	pi, err := s.integrations.Get(ctx, tenantID, domain.ProviderBilling)
	if err != nil {
		return "", err
	}
	if pi == nil || pi.APIKey == "" {
		return "", &ConfigError{Provider: domain.ProviderBilling, Detail: "no API key"}
	}
	return pi.APIKey, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EnsureCustomer makes sure the tenant has a gateway customer, searching
// by fiscal document before creating. The document is persisted digits-only.
func (s *BillingService) EnsureCustomer(ctx context.Context, tenantID, document, email string) (string, error) {
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if tenant.ProviderCustomerID != "" {
		return tenant.ProviderCustomerID, nil
	}

	doc := digitsOnly(document)
	if doc == "" {
		doc = digitsOnly(tenant.Document)
	}
	if doc == "" {
		return "", &ValidationError{Field: "document", Detail: "fiscal document required"}
	}

	apiKey, err := s.apiKey(ctx, tenantID)
	if err != nil {
		return "", err
	}

	var customer *AsaasCustomer
	err = s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		var err error
		customer, err = s.asaas.FindCustomerByDocument(apiKey, doc)
		if err != nil || customer != nil {
			return err
		}
		customer, err = s.asaas.CreateCustomer(apiKey, &AsaasCustomer{
			Name:    tenant.Name,
			CpfCnpj: doc,
			Email:   email,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	if err := s.tenants.SetDocument(ctx, tenantID, doc); err != nil {
		return "", err
	}
	if err := s.tenants.SetBillingRefs(ctx, tenantID, customer.ID, "", nil); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// Checkout provisions the customer if needed, opens the subscription and
// returns the first charge's invoice URL.
func (s *BillingService) Checkout(ctx context.Context, tenantID string, req *CheckoutRequest) (*CheckoutResult, error) {
	if req.Value <= 0 {
		return nil, &ValidationError{Field: "value", Detail: "value must be positive"}
	}
	cycle := req.Cycle
	if cycle == "" {
		cycle = "MONTHLY"
	}

	customerID, err := s.EnsureCustomer(ctx, tenantID, req.Document, req.Email)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.apiKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	nextDue := time.Now().AddDate(0, 0, 7)
	var sub *AsaasSubscription
	err = s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		var err error
		sub, err = s.asaas.CreateSubscription(apiKey, customerID, req.Value, nextDue, cycle, req.Description)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.tenants.SetBillingRefs(ctx, tenantID, customerID, sub.ID, &nextDue); err != nil {
		return nil, err
	}

	result := &CheckoutResult{CustomerID: customerID, SubscriptionID: sub.ID}
	var charges []AsaasPayment
	err = s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		var err error
		charges, err = s.asaas.GetSubscriptionPayments(apiKey, sub.ID)
		return err
	})
	if err == nil && len(charges) > 0 {
		result.InvoiceURL = charges[0].InvoiceURL
	}

	s.events.Publish(ctx, StreamBilling, "subscription_created", result)
	return result, nil
}

// CancelSubscription removes the gateway subscription and cancels the tenant.
func (s *BillingService) CancelSubscription(ctx context.Context, tenantID string) error {
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.ProviderSubscriptionID == "" {
		return &ConflictError{Detail: "tenant has no subscription"}
	}
	apiKey, err := s.apiKey(ctx, tenantID)
	if err != nil {
		return err
	}
	err = s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		return s.asaas.DeleteSubscription(apiKey, tenant.ProviderSubscriptionID)
	})
	if err != nil {
		return err
	}
	state, _ := ApplyBillingEvent(tenant, domain.EventSubscriptionCancelled, time.Now())
	if err := s.tenants.UpdateLifecycle(ctx, tenantID, state); err != nil {
		return err
	}
	s.events.Publish(ctx, StreamBilling, "subscription_cancelled", map[string]string{"tenant_id": tenantID})
	return nil
}

// ChargeRequest opens one standalone charge against the tenant's
// gateway customer.
type ChargeRequest struct {
	ClientID    string  `json:"client_id,omitempty"`
	ContractID  string  `json:"contract_id,omitempty"`
	Description string  `json:"description,omitempty"`
	Value       float64 `json:"value"`
	DueDate     string  `json:"due_date,omitempty"`
	Document    string  `json:"document,omitempty"`
	Email       string  `json:"email,omitempty"`
}

// CreateCharge records the receivable first and then opens the gateway
// charge with our payment id as the external reference, so a retried
// call or an early webhook always finds the same row. When the gateway
// rejects the charge the local row is cancelled and the failure returned.
func (s *BillingService) CreateCharge(ctx context.Context, tenantID string, req *ChargeRequest) (*domain.PaymentRecord, error) {
	if req.Value <= 0 {
		return nil, &ValidationError{Field: "value", Detail: "value must be positive"}
	}
	dueDate := time.Now().AddDate(0, 0, 7)
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return nil, &ValidationError{Field: "due_date", Detail: "expected YYYY-MM-DD"}
		}
		dueDate = parsed
	}

	customerID, err := s.EnsureCustomer(ctx, tenantID, req.Document, req.Email)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.apiKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	record := &domain.PaymentRecord{
		TenantID:    tenantID,
		ClientID:    req.ClientID,
		ContractID:  req.ContractID,
		Description: req.Description,
		Amount:      req.Value,
		DueDate:     dueDate,
		Status:      domain.PaymentPending,
	}
	paymentID, err := s.payments.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	record.ID = paymentID

	var charge *AsaasPayment
	err = s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		var err error
		charge, err = s.asaas.CreatePayment(apiKey, customerID, req.Value, dueDate, req.Description, paymentID)
		return err
	})
	if err != nil {
		if cancelErr := s.payments.SetStatus(ctx, tenantID, paymentID, domain.PaymentCancelled, nil); cancelErr != nil {
			s.logger.Error("failed to cancel local charge after gateway rejection",
				zap.String("tenant_id", tenantID),
				zap.String("payment_id", paymentID),
				zap.Error(cancelErr))
		}
		return nil, err
	}

	if err := s.payments.SetProviderRefs(ctx, tenantID, paymentID, charge.ID, charge.InvoiceURL); err != nil {
		return nil, err
	}
	record.ExternalPaymentID = charge.ID
	record.InvoiceURL = charge.InvoiceURL

	s.events.Publish(ctx, StreamBilling, "charge_created", record)
	return record, nil
}

// CancelCharge removes a charge at the gateway and cancels the local row.
// Paid charges stay put; refunds go through the gateway dashboard.
func (s *BillingService) CancelCharge(ctx context.Context, tenantID, paymentID string) error {
	record, err := s.payments.Get(ctx, tenantID, paymentID)
	if err != nil {
		return err
	}
	if record.Status == domain.PaymentPaid {
		return &ConflictError{Detail: "charge already paid"}
	}
	if record.ExternalPaymentID != "" {
		apiKey, err := s.apiKey(ctx, tenantID)
		if err != nil {
			return err
		}
		err = s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
			return s.asaas.CancelPayment(apiKey, record.ExternalPaymentID)
		})
		if err != nil {
			return err
		}
	}
	if err := s.payments.SetStatus(ctx, tenantID, paymentID, domain.PaymentCancelled, nil); err != nil {
		return err
	}
	s.events.Publish(ctx, StreamBilling, "charge_cancelled", map[string]string{
		"tenant_id":  tenantID,
		"payment_id": paymentID,
	})
	return nil
}

// Invoices returns the tenant's open charges.
func (s *BillingService) Invoices(ctx context.Context, tenantID string, limit int) ([]*domain.PaymentRecord, error) {
	return s.payments.ListOpen(ctx, tenantID, limit)
}

// RegisterWebhook configures the gateway to call us back with the shared
// auth token.
func (s *BillingService) RegisterWebhook(ctx context.Context, tenantID, callbackURL string) error {
	apiKey, err := s.apiKey(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		return s.asaas.CreateOrUpdateWebhook(apiKey, callbackURL, s.cfg.WebhookToken)
	})
}

// TestConnection verifies the tenant's API key against the gateway.
func (s *BillingService) TestConnection(ctx context.Context, tenantID string) error {
	apiKey, err := s.apiKey(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.caller.Call(ctx, tenantID, domain.ProviderBilling, func() error {
		return s.asaas.Ping(apiKey)
	})
}

// VerifyWebhookToken checks the gateway's auth token header.
func (s *BillingService) VerifyWebhookToken(token string) bool {
	return s.cfg.WebhookToken == "" || token == s.cfg.WebhookToken
}

// eventStatusMap maps gateway events onto payment-record states.
func eventStatusMap(event string) (status string, paid bool, ok bool) {
	switch event {
	case domain.EventPaymentConfirmed, domain.EventPaymentReceived:
		return domain.PaymentPaid, true, true
	case domain.EventPaymentOverdue:
		return domain.PaymentOverdue, false, true
	case domain.EventPaymentRefunded, domain.EventPaymentReversed:
		return domain.PaymentRefunded, false, true
	default:
		return "", false, false
	}
}

// HandleWebhook ingests one gateway delivery. The envelope insert, payment
// reconciliation and lifecycle transition commit in a single transaction;
// the idempotency key makes redelivery a no-op.
func (s *BillingService) HandleWebhook(ctx context.Context, pathTenantID string, payload []byte) (*WebhookResult, error) {
	var hook asaasWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return &WebhookResult{Handled: false, Reason: "unparseable payload"}, nil
	}
	if hook.Event == "" {
		return &WebhookResult{Handled: false, Reason: "missing event"}, nil
	}

	var refID string
	switch {
	case hook.Payment != nil:
		refID = hook.Payment.ID
	case hook.Subscription != nil:
		refID = hook.Subscription.ID
	default:
		return &WebhookResult{Handled: false, Reason: "event without payment or subscription"}, nil
	}
	idempotencyKey := refID + ":" + hook.Event

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin webhook transaction: %w", err)
	}
	defer tx.Rollback()

	var eventID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO billing_events (event_type, payload, idempotency_key)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING event_id::text
	`, hook.Event, string(payload), idempotencyKey).Scan(&eventID)
	if err == sql.ErrNoRows {
		return &WebhookResult{Handled: false, Reason: "duplicate delivery"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store billing event: %w", err)
	}

	tenantID, err := s.resolveWebhookTenant(ctx, tx, pathTenantID, &hook)
	if err != nil {
		return nil, err
	}
	if tenantID == "" {
		// Keep the envelope for auditing, but nothing to apply it to.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &WebhookResult{Handled: false, Reason: "no tenant for customer"}, nil
	}

	if hook.Payment != nil {
		if err := s.reconcilePayment(ctx, tx, tenantID, &hook); err != nil {
			return nil, err
		}
	}

	if err := s.applyLifecycle(ctx, tx, tenantID, hook.Event); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE billing_events
		SET processed_at = now(), tenant_id = $2::uuid
		WHERE event_id = $1::uuid
	`, eventID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark event processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit webhook transaction: %w", err)
	}

	s.events.Publish(ctx, StreamBilling, "billing_event_processed", map[string]string{
		"tenant_id": tenantID,
		"event":     hook.Event,
	})
	return &WebhookResult{Handled: true}, nil
}

// resolveWebhookTenant prefers the tenant id in the callback path and
// falls back to the gateway customer id.
func (s *BillingService) resolveWebhookTenant(ctx context.Context, tx *sql.Tx, pathTenantID string, hook *asaasWebhook) (string, error) {
	if pathTenantID != "" {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT tenant_id::text FROM tenants WHERE tenant_id = $1::uuid`, pathTenantID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("failed to resolve tenant: %w", err)
		}
	}

	customerID := ""
	if hook.Payment != nil {
		customerID = hook.Payment.Customer
	} else if hook.Subscription != nil {
		customerID = hook.Subscription.Customer
	}
	if customerID == "" {
		return "", nil
	}
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT tenant_id::text FROM tenants WHERE provider_customer_id = $1 ORDER BY created_at LIMIT 1`,
		customerID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve tenant by customer: %w", err)
	}
	return id, nil
}

// reconcilePayment binds the gateway charge to its payment_records row:
// externalReference (our payment id) first, the gateway's own id second.
// A subscription charge with no local row gets one created so invoices
// stay complete.
func (s *BillingService) reconcilePayment(ctx context.Context, tx *sql.Tx, tenantID string, hook *asaasWebhook) error {
	status, paid, ok := eventStatusMap(hook.Event)
	if !ok {
		return nil
	}

	var paidAt *time.Time
	if paid {
		t := time.Now()
		if hook.Payment.PaymentDate != "" {
			if parsed, err := time.Parse("2006-01-02", hook.Payment.PaymentDate); err == nil {
				t = parsed
			}
		}
		paidAt = &t
	}

	var paymentID string
	err := tx.QueryRowContext(ctx, `
		SELECT payment_id::text FROM payment_records
		WHERE tenant_id = $1::uuid AND payment_id::text = $2
	`, tenantID, hook.Payment.ExternalReference).Scan(&paymentID)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `
			SELECT payment_id::text FROM payment_records
			WHERE tenant_id = $1::uuid AND external_payment_id = $2
			ORDER BY created_at DESC LIMIT 1
		`, tenantID, hook.Payment.ID).Scan(&paymentID)
	}
	if err == sql.ErrNoRows {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_records (tenant_id, description, amount, due_date, status, paid_at, external_payment_id, invoice_url)
			VALUES ($1::uuid, 'Assinatura', $2, now(), $3, $4, $5, NULLIF($6, ''))
		`, tenantID, hook.Payment.Value, status, paidAt, hook.Payment.ID, hook.Payment.InvoiceURL)
		if err != nil {
			return fmt.Errorf("failed to create payment from webhook: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve payment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payment_records
		SET status = $3, paid_at = $4,
		    external_payment_id = COALESCE(NULLIF($5, ''), external_payment_id),
		    invoice_url = COALESCE(NULLIF($6, ''), invoice_url)
		WHERE tenant_id = $1::uuid AND payment_id = $2::uuid
	`, tenantID, paymentID, status, paidAt, hook.Payment.ID, hook.Payment.InvoiceURL)
	if err != nil {
		return fmt.Errorf("failed to reconcile payment: %w", err)
	}
	return nil
}

// applyLifecycle loads the tenant row under lock, maps the event and
// writes the new state inside the webhook transaction.
func (s *BillingService) applyLifecycle(ctx context.Context, tx *sql.Tx, tenantID, event string) error {
	var tenant domain.Tenant
	err := tx.QueryRowContext(ctx, `
		SELECT tenant_id::text, payment_status, overdue_since, platform_disabled
		FROM tenants WHERE tenant_id = $1::uuid
		FOR UPDATE
	`, tenantID).Scan(&tenant.ID, &tenant.PaymentStatus, &tenant.OverdueSince, &tenant.PlatformDisabled)
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}

	state, changed := ApplyBillingEvent(&tenant, event, time.Now())
	if !changed {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tenants
		SET payment_status = $2, overdue_since = $3, platform_disabled = $4, updated_at = now()
		WHERE tenant_id = $1::uuid
	`, tenantID, state.PaymentStatus, state.OverdueSince, state.PlatformDisabled)
	if err != nil {
		return fmt.Errorf("failed to update tenant lifecycle: %w", err)
	}
	return nil
}

// ExpireTrials moves tenants whose trial window has passed to suspended.
// Run daily by the cron surface.
func (s *BillingService) ExpireTrials(ctx context.Context) (int, error) {
	now := time.Now()
	tenants, err := s.tenants.ListTrialsEndedBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, tenant := range tenants {
		state := repository.LifecycleState{
			PaymentStatus:    domain.PaymentStatusSuspended,
			OverdueSince:     tenant.OverdueSince,
			PlatformDisabled: tenant.PlatformDisabled,
		}
		if err := s.tenants.UpdateLifecycle(ctx, tenant.ID, state); err != nil {
			s.logger.Error("failed to expire trial",
				zap.String("tenant_id", tenant.ID),
				zap.Error(err))
			continue
		}
		expired++
		s.events.Publish(ctx, StreamBilling, "trial_expired", map[string]string{"tenant_id": tenant.ID})
	}
	if expired > 0 {
		s.logger.Info("trial expiry sweep finished", zap.Int("expired", expired))
	}
	return expired, nil
}
