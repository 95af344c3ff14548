package domain

import (
	"encoding/json"
	"time"
)

// Billing gateway event types (Asaas naming).
const (
	EventPaymentConfirmed      = "PAYMENT_CONFIRMED"
	EventPaymentReceived       = "PAYMENT_RECEIVED"
	EventPaymentOverdue        = "PAYMENT_OVERDUE"
	EventPaymentRefunded       = "PAYMENT_REFUNDED"
	EventPaymentReversed       = "PAYMENT_REVERSED"
	EventSubscriptionDeleted   = "SUBSCRIPTION_DELETED"
	EventSubscriptionCancelled = "SUBSCRIPTION_CANCELLED"
)

// BillingEvent is the durable envelope for one webhook delivery. The
// idempotency key is globally unique; a delivery whose key already exists
// with processed_at set is acknowledged without side effects.
type BillingEvent struct {
	ID             string          `json:"event_id"`
	TenantID       string          `json:"tenant_id,omitempty"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentRecord statuses.
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentOverdue   = "overdue"
	PaymentRefunded  = "refunded"
	PaymentCancelled = "cancelled"
)

// PaymentRecord is one receivable (a charge), reconciled against the
// billing gateway by external_reference first, provider payment id second.
type PaymentRecord struct {
	ID          string     `json:"payment_id"`
	TenantID    string     `json:"tenant_id"`
	ClientID    string     `json:"client_id,omitempty"`
	ContractID  string     `json:"contract_id,omitempty"`
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount"`
	DueDate     time.Time  `json:"due_date"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`

	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	InvoiceURL        string `json:"invoice_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
