// +build integration

package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/config"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/database"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"
)

func webhookTestEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func webhookTestEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func webhookTestDB(t *testing.T) *sql.DB {
	cfg := &config.DatabaseConfig{
		Host:     webhookTestEnv("TEST_DB_HOST", "localhost"),
		Port:     webhookTestEnvInt("TEST_DB_PORT", 5432),
		User:     webhookTestEnv("TEST_DB_USER", "postgres"),
		Password: webhookTestEnv("TEST_DB_PASSWORD", "postgres"),
		Database: webhookTestEnv("TEST_DB_NAME", "northway_test"),
		SSLMode:  webhookTestEnv("TEST_DB_SSLMODE", "disable"),
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil
	}
	return db
}

func createTrialTenant(t *testing.T, db *sql.DB, name string) string {
	var id string
	err := db.QueryRow(`
		INSERT INTO tenants (name, payment_status, trial_end)
		VALUES ($1, 'trial', now() + interval '7 days')
		RETURNING tenant_id::text
	`, name).Scan(&id)
	if err != nil {
		t.Fatalf("failed to create test tenant: %v", err)
	}
	return id
}

func cleanupWebhookTenant(t *testing.T, db *sql.DB, tenantID string) {
	for _, table := range []string{"payment_records", "billing_events", "tenants"} {
		db.Exec(`DELETE FROM `+table+` WHERE tenant_id = $1::uuid`, tenantID)
	}
}

// A confirmed-payment delivery must, in one pass: store the envelope,
// create the payment row, activate the tenant, and stamp processed_at.
// Redelivering the same gateway event must change nothing.
func TestBillingWebhook_PaymentConfirmedEndToEnd(t *testing.T) {
	db := webhookTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	tenantID := createTrialTenant(t, db, "Test Webhook E2E")
	defer cleanupWebhookTenant(t, db, tenantID)

	svc := NewBillingService(
		repository.NewPostgresTenantsRepository(db),
		repository.NewPostgresPaymentsRepository(db),
		repository.NewPostgresBillingEventsRepository(db),
		nil, nil, nil,
		NewEventPublisher(nil, zap.NewNop()),
		db, &config.BillingConfig{}, zap.NewNop())
	ctx := context.Background()

	// Unique gateway payment id per run; the idempotency key is global.
	gatewayPaymentID := fmt.Sprintf("pay_e2e_%d", time.Now().UnixNano())
	payload := []byte(fmt.Sprintf(`{
		"event": "PAYMENT_CONFIRMED",
		"payment": {
			"id": "%s",
			"value": 149.90,
			"status": "CONFIRMED",
			"invoiceUrl": "https://invoice.example/e2e",
			"paymentDate": "2026-08-28"
		}
	}`, gatewayPaymentID))

	result, err := svc.HandleWebhook(ctx, tenantID, payload)
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if !result.Handled {
		t.Fatalf("expected delivery to be handled, got reason %q", result.Reason)
	}

	// Redelivery is acknowledged without side effects.
	again, err := svc.HandleWebhook(ctx, tenantID, payload)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if again.Handled || again.Reason != "duplicate delivery" {
		t.Fatalf("expected duplicate delivery ack, got %+v", again)
	}

	var events int
	var processed *time.Time
	err = db.QueryRow(`
		SELECT count(*), max(processed_at) FROM billing_events
		WHERE idempotency_key = $1
	`, gatewayPaymentID+":PAYMENT_CONFIRMED").Scan(&events, &processed)
	if err != nil {
		t.Fatalf("failed to read billing_events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected exactly one envelope, got %d", events)
	}
	if processed == nil {
		t.Fatal("expected processed_at to be stamped")
	}

	var paymentStatus string
	var overdueSince *time.Time
	var disabled bool
	err = db.QueryRow(`
		SELECT payment_status, overdue_since, platform_disabled
		FROM tenants WHERE tenant_id = $1::uuid
	`, tenantID).Scan(&paymentStatus, &overdueSince, &disabled)
	if err != nil {
		t.Fatalf("failed to read tenant: %v", err)
	}
	if paymentStatus != domain.PaymentStatusActive {
		t.Fatalf("expected tenant active after confirmation, got %q", paymentStatus)
	}
	if overdueSince != nil || disabled {
		t.Fatal("expected overdue marker and platform block to be cleared")
	}

	var recordStatus string
	var paidAt *time.Time
	err = db.QueryRow(`
		SELECT status, paid_at FROM payment_records
		WHERE tenant_id = $1::uuid AND external_payment_id = $2
	`, tenantID, gatewayPaymentID).Scan(&recordStatus, &paidAt)
	if err != nil {
		t.Fatalf("failed to read payment record: %v", err)
	}
	if recordStatus != domain.PaymentPaid || paidAt == nil {
		t.Fatalf("expected paid payment record, got status %q", recordStatus)
	}
}
