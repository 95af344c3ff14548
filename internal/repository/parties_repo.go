package repository

import (
	"context"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// LeadsRepository provides data access to leads.
type LeadsRepository interface {
	GetLead(ctx context.Context, tenantID, leadID string) (*domain.Lead, error)

	// FindByPhoneVariant finds the newest lead whose stored phone ends with
	// the given digit variant. Returns nil (no error) when absent.
	FindByPhoneVariant(ctx context.Context, tenantID, variant string) (*domain.Lead, error)

	// SetContactUUID links a lead to its contact. Only fills a missing link;
	// an existing contact_uuid is never overwritten.
	SetContactUUID(ctx context.Context, tenantID, leadID, contactUUID string) error

	SetProfilePic(ctx context.Context, tenantID, leadID, url string) error

	// CreateLead inserts a lead (orphan-conversation conversion).
	CreateLead(ctx context.Context, lead *domain.Lead) (string, error)

	// ListUnlinkedWithPhone returns leads that have a phone but no contact
	// link yet, for the backfill pass.
	ListUnlinkedWithPhone(ctx context.Context, tenantID string, limit int) ([]*domain.Lead, error)

	ListWithDriveFolder(ctx context.Context, tenantID string) ([]*domain.Lead, error)
	SetDriveFolder(ctx context.Context, tenantID, leadID, folderID string) error
	RecordDriveScan(ctx context.Context, tenantID, leadID string, at time.Time, newFiles int) error
}

// ClientsRepository provides data access to clients.
type ClientsRepository interface {
	GetClient(ctx context.Context, tenantID, clientID string) (*domain.Client, error)
	FindByPhoneVariant(ctx context.Context, tenantID, variant string) (*domain.Client, error)
	SetContactUUID(ctx context.Context, tenantID, clientID, contactUUID string) error
	SetProfilePic(ctx context.Context, tenantID, clientID, url string) error
	ListUnlinkedWithPhone(ctx context.Context, tenantID string, limit int) ([]*domain.Client, error)

	ListWithDriveFolder(ctx context.Context, tenantID string) ([]*domain.Client, error)
	SetDriveFolder(ctx context.Context, tenantID, clientID, folderID string) error
	RecordDriveScan(ctx context.Context, tenantID, clientID string, at time.Time, newFiles int) error
}
