package repository

import (
	"context"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// ContactsRepository provides data access to the contact hub.
type ContactsRepository interface {
	GetByUUID(ctx context.Context, tenantID, contactUUID string) (*domain.Contact, error)

	// FindByPhone looks up a contact by canonical phone.
	// Returns nil (no error) when absent.
	FindByPhone(ctx context.Context, tenantID, canonicalPhone string) (*domain.Contact, error)

	// FindOrCreate upserts by (tenant_id, canonical_phone). Concurrent
	// creations of the same phone are resolved by the uniqueness constraint:
	// the loser re-reads the winning row. Returns created=true for a fresh row.
	FindOrCreate(ctx context.Context, tenantID, canonicalPhone string) (*domain.Contact, bool, error)

	SetProfilePic(ctx context.Context, tenantID, contactUUID, url string) error
}
