package repository

import (
	"context"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// BillingEventsRepository stores webhook delivery envelopes keyed by
// idempotency key.
type BillingEventsRepository interface {
	// GetByIdempotencyKey returns nil (no error) when the key is unseen.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.BillingEvent, error)

	// Insert stores a new envelope. Returns (id, false, nil) on success and
	// ("", true, nil) when the idempotency key already exists.
	Insert(ctx context.Context, ev *domain.BillingEvent) (string, bool, error)

	// MarkProcessed stamps processed_at and binds the resolved tenant.
	MarkProcessed(ctx context.Context, eventID, tenantID string, at time.Time) error
}

// PaymentsRepository provides data access to receivables.
type PaymentsRepository interface {
	Get(ctx context.Context, tenantID, paymentID string) (*domain.PaymentRecord, error)

	// GetByExternalReference resolves the internal id a charge was created
	// with at the gateway. Returns nil (no error) when absent.
	GetByExternalReference(ctx context.Context, tenantID, reference string) (*domain.PaymentRecord, error)

	// GetByExternalPaymentID is the fallback lookup by the gateway's own id.
	GetByExternalPaymentID(ctx context.Context, tenantID, externalID string) (*domain.PaymentRecord, error)

	Create(ctx context.Context, p *domain.PaymentRecord) (string, error)

	// SetProviderRefs stores the gateway payment id and invoice URL after
	// the charge is created remotely.
	SetProviderRefs(ctx context.Context, tenantID, paymentID, externalPaymentID, invoiceURL string) error

	// SetStatus applies a reconciled state; paidAt is nil unless paid.
	SetStatus(ctx context.Context, tenantID, paymentID, status string, paidAt *time.Time) error

	// ListOpen returns pending/overdue payments newest due first, for the
	// invoices listing.
	ListOpen(ctx context.Context, tenantID string, limit int) ([]*domain.PaymentRecord, error)
}
