package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// PostgresClientsRepository is the Postgres implementation of ClientsRepository.
type PostgresClientsRepository struct {
	db *sql.DB
}

func NewPostgresClientsRepository(db *sql.DB) *PostgresClientsRepository {
	return &PostgresClientsRepository{db: db}
}

var _ ClientsRepository = (*PostgresClientsRepository)(nil)

const clientColumns = `
	client_id::text,
	tenant_id::text,
	COALESCE(contact_uuid::text, '') as contact_uuid,
	name,
	COALESCE(phone, '') as phone,
	COALESCE(email, '') as email,
	COALESCE(service, '') as service,
	COALESCE(health, 'green') as health,
	COALESCE(profile_pic_url, '') as profile_pic_url,
	COALESCE(drive_folder_id, '') as drive_folder_id,
	drive_last_scan_at,
	unread_files,
	created_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.Client, error) {
	var c domain.Client
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.ContactUUID,
		&c.Name,
		&c.Phone,
		&c.Email,
		&c.Service,
		&c.Health,
		&c.ProfilePicURL,
		&c.DriveFolderID,
		&c.DriveLastScanAt,
		&c.UnreadFiles,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresClientsRepository) GetClient(ctx context.Context, tenantID, clientID string) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE tenant_id = $1::uuid AND client_id = $2::uuid`

	c, err := scanClient(r.db.QueryRowContext(ctx, query, tenantID, clientID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("client not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (r *PostgresClientsRepository) FindByPhoneVariant(ctx context.Context, tenantID, variant string) (*domain.Client, error) {
	if variant == "" {
		return nil, nil
	}
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE tenant_id = $1::uuid
		  AND regexp_replace(COALESCE(phone, ''), '\D', '', 'g') LIKE '%' || $2
		ORDER BY created_at DESC
		LIMIT 1`

	c, err := scanClient(r.db.QueryRowContext(ctx, query, tenantID, variant))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find client by phone: %w", err)
	}
	return c, nil
}

func (r *PostgresClientsRepository) SetContactUUID(ctx context.Context, tenantID, clientID, contactUUID string) error {
	query := `
		UPDATE clients SET contact_uuid = $3::uuid
		WHERE tenant_id = $1::uuid AND client_id = $2::uuid AND contact_uuid IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, clientID, contactUUID); err != nil {
		return fmt.Errorf("failed to link client to contact: %w", err)
	}
	return nil
}

func (r *PostgresClientsRepository) SetProfilePic(ctx context.Context, tenantID, clientID, url string) error {
	query := `UPDATE clients SET profile_pic_url = $3 WHERE tenant_id = $1::uuid AND client_id = $2::uuid`
	if _, err := r.db.ExecContext(ctx, query, tenantID, clientID, url); err != nil {
		return fmt.Errorf("failed to set client profile pic: %w", err)
	}
	return nil
}

func (r *PostgresClientsRepository) ListUnlinkedWithPhone(ctx context.Context, tenantID string, limit int) ([]*domain.Client, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE tenant_id = $1::uuid AND contact_uuid IS NULL AND COALESCE(phone, '') <> ''
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked clients: %w", err)
	}
	defer rows.Close()

	var out []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresClientsRepository) ListWithDriveFolder(ctx context.Context, tenantID string) ([]*domain.Client, error) {
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE tenant_id = $1::uuid AND COALESCE(drive_folder_id, '') <> ''
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients with drive folder: %w", err)
	}
	defer rows.Close()

	var out []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresClientsRepository) SetDriveFolder(ctx context.Context, tenantID, clientID, folderID string) error {
	query := `UPDATE clients SET drive_folder_id = $3 WHERE tenant_id = $1::uuid AND client_id = $2::uuid`
	if _, err := r.db.ExecContext(ctx, query, tenantID, clientID, folderID); err != nil {
		return fmt.Errorf("failed to set client drive folder: %w", err)
	}
	return nil
}

func (r *PostgresClientsRepository) RecordDriveScan(ctx context.Context, tenantID, clientID string, at time.Time, newFiles int) error {
	query := `
		UPDATE clients
		SET drive_last_scan_at = $3, unread_files = unread_files + $4
		WHERE tenant_id = $1::uuid AND client_id = $2::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, clientID, at, newFiles); err != nil {
		return fmt.Errorf("failed to record client drive scan: %w", err)
	}
	return nil
}
