package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"

	"github.com/lib/pq"
)

// PostgresBillingEventsRepository is the Postgres implementation of
// BillingEventsRepository.
type PostgresBillingEventsRepository struct {
	db *sql.DB
}

func NewPostgresBillingEventsRepository(db *sql.DB) *PostgresBillingEventsRepository {
	return &PostgresBillingEventsRepository{db: db}
}

var _ BillingEventsRepository = (*PostgresBillingEventsRepository)(nil)

func (r *PostgresBillingEventsRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.BillingEvent, error) {
	query := `
		SELECT event_id::text,
		       COALESCE(tenant_id::text, '') as tenant_id,
		       event_type,
		       COALESCE(payload, 'null'::jsonb) as payload,
		       idempotency_key,
		       processed_at,
		       created_at
		FROM billing_events
		WHERE idempotency_key = $1
	`
	var ev domain.BillingEvent
	var payload json.RawMessage
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&ev.ID, &ev.TenantID, &ev.EventType, &payload,
		&ev.IdempotencyKey, &ev.ProcessedAt, &ev.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get billing event: %w", err)
	}
	ev.Payload = payload
	return &ev, nil
}

func (r *PostgresBillingEventsRepository) Insert(ctx context.Context, ev *domain.BillingEvent) (string, bool, error) {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	query := `
		INSERT INTO billing_events (tenant_id, event_type, payload, idempotency_key)
		VALUES (NULLIF($1, '')::uuid, $2, $3::jsonb, $4)
		RETURNING event_id::text
	`
	var id string
	err := r.db.QueryRowContext(ctx, query, ev.TenantID, ev.EventType, string(payload), ev.IdempotencyKey).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", true, nil
		}
		return "", false, fmt.Errorf("failed to insert billing event: %w", err)
	}
	return id, false, nil
}

func (r *PostgresBillingEventsRepository) MarkProcessed(ctx context.Context, eventID, tenantID string, at time.Time) error {
	query := `
		UPDATE billing_events
		SET processed_at = $3, tenant_id = COALESCE(NULLIF($2, '')::uuid, tenant_id)
		WHERE event_id = $1::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, eventID, tenantID, at); err != nil {
		return fmt.Errorf("failed to mark billing event processed: %w", err)
	}
	return nil
}

// PostgresPaymentsRepository is the Postgres implementation of PaymentsRepository.
type PostgresPaymentsRepository struct {
	db *sql.DB
}

func NewPostgresPaymentsRepository(db *sql.DB) *PostgresPaymentsRepository {
	return &PostgresPaymentsRepository{db: db}
}

var _ PaymentsRepository = (*PostgresPaymentsRepository)(nil)

const paymentColumns = `
	payment_id::text,
	tenant_id::text,
	COALESCE(client_id::text, '') as client_id,
	COALESCE(contract_id::text, '') as contract_id,
	COALESCE(description, '') as description,
	amount,
	due_date,
	status,
	paid_at,
	COALESCE(external_payment_id, '') as external_payment_id,
	COALESCE(invoice_url, '') as invoice_url,
	created_at`

func scanPayment(row interface{ Scan(...any) error }) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.ClientID,
		&p.ContractID,
		&p.Description,
		&p.Amount,
		&p.DueDate,
		&p.Status,
		&p.PaidAt,
		&p.ExternalPaymentID,
		&p.InvoiceURL,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPaymentsRepository) Get(ctx context.Context, tenantID, paymentID string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_records WHERE tenant_id = $1::uuid AND payment_id = $2::uuid`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, tenantID, paymentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentsRepository) GetByExternalReference(ctx context.Context, tenantID, reference string) (*domain.PaymentRecord, error) {
	if reference == "" {
		return nil, nil
	}
	query := `SELECT ` + paymentColumns + ` FROM payment_records WHERE tenant_id = $1::uuid AND payment_id::text = $2`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, tenantID, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve payment by reference: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentsRepository) GetByExternalPaymentID(ctx context.Context, tenantID, externalID string) (*domain.PaymentRecord, error) {
	if externalID == "" {
		return nil, nil
	}
	query := `SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE tenant_id = $1::uuid AND external_payment_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, tenantID, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve payment by external id: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentsRepository) Create(ctx context.Context, p *domain.PaymentRecord) (string, error) {
	status := p.Status
	if status == "" {
		status = domain.PaymentPending
	}
	query := `
		INSERT INTO payment_records (tenant_id, client_id, contract_id, description, amount, due_date, status, external_payment_id, invoice_url)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		RETURNING payment_id::text
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		p.TenantID, p.ClientID, p.ContractID, p.Description,
		p.Amount, p.DueDate, status, p.ExternalPaymentID, p.InvoiceURL,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create payment: %w", err)
	}
	return id, nil
}

func (r *PostgresPaymentsRepository) SetProviderRefs(ctx context.Context, tenantID, paymentID, externalPaymentID, invoiceURL string) error {
	query := `
		UPDATE payment_records
		SET external_payment_id = NULLIF($3, ''), invoice_url = NULLIF($4, '')
		WHERE tenant_id = $1::uuid AND payment_id = $2::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, paymentID, externalPaymentID, invoiceURL); err != nil {
		return fmt.Errorf("failed to set payment provider refs: %w", err)
	}
	return nil
}

func (r *PostgresPaymentsRepository) SetStatus(ctx context.Context, tenantID, paymentID, status string, paidAt *time.Time) error {
	query := `
		UPDATE payment_records
		SET status = $3, paid_at = $4
		WHERE tenant_id = $1::uuid AND payment_id = $2::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, paymentID, status, paidAt); err != nil {
		return fmt.Errorf("failed to set payment status: %w", err)
	}
	return nil
}

func (r *PostgresPaymentsRepository) ListOpen(ctx context.Context, tenantID string, limit int) ([]*domain.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE tenant_id = $1::uuid AND status IN ('pending', 'overdue')
		ORDER BY due_date DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
