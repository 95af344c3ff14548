// +build integration

package repository

import (
	"context"
	"testing"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

func TestPostgresMessagesRepository_AdvanceStatusMonotonic(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	tenantID := createTestTenant(t, db, "Test AdvanceStatus")
	defer cleanupTestTenant(t, db, tenantID)

	repo := NewPostgresMessagesRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, &domain.Message{
		TenantID:   tenantID,
		Phone:      "5511987654321",
		Direction:  domain.DirectionOut,
		Kind:       domain.MessageKindText,
		Body:       "oi",
		Status:     domain.MessageStatusSent,
		ExternalID: "ext-adv-1",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	moved, err := repo.AdvanceStatus(ctx, tenantID, "ext-adv-1", domain.MessageStatusDelivered)
	if err != nil {
		t.Fatalf("AdvanceStatus failed: %v", err)
	}
	if !moved {
		t.Fatal("expected sent -> delivered to move")
	}

	// Downgrade must not apply.
	moved, err = repo.AdvanceStatus(ctx, tenantID, "ext-adv-1", domain.MessageStatusSent)
	if err != nil {
		t.Fatalf("AdvanceStatus failed: %v", err)
	}
	if moved {
		t.Fatal("expected delivered -> sent to be a no-op")
	}

	msg, err := repo.GetByExternalID(ctx, tenantID, "ext-adv-1")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if msg.Status != domain.MessageStatusDelivered {
		t.Errorf("expected status delivered, got %q", msg.Status)
	}
}

func TestPostgresMessagesRepository_AdvanceStatusSkipsFailed(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	tenantID := createTestTenant(t, db, "Test AdvanceStatus Failed")
	defer cleanupTestTenant(t, db, tenantID)

	repo := NewPostgresMessagesRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, &domain.Message{
		TenantID:   tenantID,
		Phone:      "5511987654321",
		Direction:  domain.DirectionOut,
		Kind:       domain.MessageKindText,
		Status:     domain.MessageStatusFailed,
		ExternalID: "ext-failed-1",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	moved, err := repo.AdvanceStatus(ctx, tenantID, "ext-failed-1", domain.MessageStatusDelivered)
	if err != nil {
		t.Fatalf("AdvanceStatus failed: %v", err)
	}
	if moved {
		t.Fatal("failed messages must never re-enter the delivery ladder")
	}
}

func TestPostgresMessagesRepository_AdoptOrphans(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	tenantID := createTestTenant(t, db, "Test AdoptOrphans")
	defer cleanupTestTenant(t, db, tenantID)

	contacts := NewPostgresContactsRepository(db)
	messages := NewPostgresMessagesRepository(db)
	ctx := context.Background()

	// Orphan row: raw gateway phone, no contact or party links.
	if _, err := messages.Insert(ctx, &domain.Message{
		TenantID:  tenantID,
		Phone:     "5511987654321",
		Direction: domain.DirectionIn,
		Kind:      domain.MessageKindText,
		Body:      "oi, tudo bem?",
		Status:    domain.MessageStatusDelivered,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	contact, _, err := contacts.FindOrCreate(ctx, tenantID, "5511987654321")
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}

	var leadID string
	err = db.QueryRow(`
		INSERT INTO leads (tenant_id, contact_uuid, name, phone)
		VALUES ($1::uuid, $2::uuid, 'Maria', '5511987654321')
		RETURNING lead_id::text`, tenantID, contact.UUID).Scan(&leadID)
	if err != nil {
		t.Fatalf("failed to create lead: %v", err)
	}

	adopted, err := messages.AdoptOrphans(ctx, tenantID, contact.UUID, leadID,
		[]string{"5511987654321", "11987654321", "551187654321"})
	if err != nil {
		t.Fatalf("AdoptOrphans failed: %v", err)
	}
	if adopted != 1 {
		t.Fatalf("expected 1 adopted message, got %d", adopted)
	}

	history, err := messages.History(ctx, tenantID, contact.UUID, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected adopted message in history, got %d rows", len(history))
	}
	if history[0].LeadID != leadID {
		t.Errorf("expected lead link on adopted message, got %q", history[0].LeadID)
	}
}

func TestPostgresMessagesRepository_MarkReadIncludesOrphans(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	tenantID := createTestTenant(t, db, "Test MarkRead")
	defer cleanupTestTenant(t, db, tenantID)

	contacts := NewPostgresContactsRepository(db)
	messages := NewPostgresMessagesRepository(db)
	ctx := context.Background()

	contact, _, err := contacts.FindOrCreate(ctx, tenantID, "5511987654321")
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}

	if _, err := messages.Insert(ctx, &domain.Message{
		TenantID:    tenantID,
		ContactUUID: contact.UUID,
		Phone:       "5511987654321",
		Direction:   domain.DirectionIn,
		Kind:        domain.MessageKindText,
		Status:      domain.MessageStatusDelivered,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// Orphan with a formatted phone that normalizes to a known variant.
	if _, err := messages.Insert(ctx, &domain.Message{
		TenantID:  tenantID,
		Phone:     "+55 (11) 98765-4321",
		Direction: domain.DirectionIn,
		Kind:      domain.MessageKindText,
		Status:    domain.MessageStatusDelivered,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	n, err := messages.MarkRead(ctx, tenantID, contact.UUID,
		[]string{"5511987654321", "11987654321", "551187654321"})
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows marked read, got %d", n)
	}
}
