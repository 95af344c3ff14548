package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// PostgresContactsRepository is the Postgres implementation of ContactsRepository.
type PostgresContactsRepository struct {
	db *sql.DB
}

func NewPostgresContactsRepository(db *sql.DB) *PostgresContactsRepository {
	return &PostgresContactsRepository{db: db}
}

var _ ContactsRepository = (*PostgresContactsRepository)(nil)

const contactColumns = `
	uuid::text,
	tenant_id::text,
	canonical_phone,
	COALESCE(profile_pic_url, '') as profile_pic_url,
	created_at`

func scanContact(row interface{ Scan(...any) error }) (*domain.Contact, error) {
	var c domain.Contact
	err := row.Scan(&c.UUID, &c.TenantID, &c.CanonicalPhone, &c.ProfilePicURL, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresContactsRepository) GetByUUID(ctx context.Context, tenantID, contactUUID string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1::uuid AND uuid = $2::uuid`

	c, err := scanContact(r.db.QueryRowContext(ctx, query, tenantID, contactUUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("contact not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}

func (r *PostgresContactsRepository) FindByPhone(ctx context.Context, tenantID, canonicalPhone string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1::uuid AND canonical_phone = $2`

	c, err := scanContact(r.db.QueryRowContext(ctx, query, tenantID, canonicalPhone))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact by phone: %w", err)
	}
	return c, nil
}

func (r *PostgresContactsRepository) FindOrCreate(ctx context.Context, tenantID, canonicalPhone string) (*domain.Contact, bool, error) {
	if canonicalPhone == "" {
		return nil, false, fmt.Errorf("canonical_phone is required")
	}

	// Insert path first; ON CONFLICT DO NOTHING returns no row when another
	// worker won the race, in which case the plain lookup below succeeds.
	insert := `
		INSERT INTO contacts (tenant_id, canonical_phone)
		VALUES ($1::uuid, $2)
		ON CONFLICT (tenant_id, canonical_phone) DO NOTHING
		RETURNING ` + contactColumns

	c, err := scanContact(r.db.QueryRowContext(ctx, insert, tenantID, canonicalPhone))
	if err == nil {
		return c, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create contact: %w", err)
	}

	existing, err := r.FindByPhone(ctx, tenantID, canonicalPhone)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("contact upsert race lost and re-read empty: tenant=%s phone=%s", tenantID, canonicalPhone)
	}
	return existing, false, nil
}

func (r *PostgresContactsRepository) SetProfilePic(ctx context.Context, tenantID, contactUUID, url string) error {
	query := `UPDATE contacts SET profile_pic_url = $3 WHERE tenant_id = $1::uuid AND uuid = $2::uuid`
	if _, err := r.db.ExecContext(ctx, query, tenantID, contactUUID, url); err != nil {
		return fmt.Errorf("failed to set contact profile pic: %w", err)
	}
	return nil
}
