package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// PostgresLeadsRepository is the Postgres implementation of LeadsRepository.
type PostgresLeadsRepository struct {
	db *sql.DB
}

func NewPostgresLeadsRepository(db *sql.DB) *PostgresLeadsRepository {
	return &PostgresLeadsRepository{db: db}
}

var _ LeadsRepository = (*PostgresLeadsRepository)(nil)

const leadColumns = `
	lead_id::text,
	tenant_id::text,
	COALESCE(contact_uuid::text, '') as contact_uuid,
	name,
	COALESCE(phone, '') as phone,
	COALESCE(email, '') as email,
	COALESCE(source, '') as source,
	COALESCE(status, 'new') as status,
	COALESCE(pipeline_stage_id::text, '') as pipeline_stage_id,
	COALESCE(assigned_user_id::text, '') as assigned_user_id,
	COALESCE(profile_pic_url, '') as profile_pic_url,
	COALESCE(drive_folder_id, '') as drive_folder_id,
	drive_last_scan_at,
	unread_files,
	created_at`

func scanLead(row interface{ Scan(...any) error }) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID,
		&l.TenantID,
		&l.ContactUUID,
		&l.Name,
		&l.Phone,
		&l.Email,
		&l.Source,
		&l.Status,
		&l.PipelineStageID,
		&l.AssignedUserID,
		&l.ProfilePicURL,
		&l.DriveFolderID,
		&l.DriveLastScanAt,
		&l.UnreadFiles,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *PostgresLeadsRepository) GetLead(ctx context.Context, tenantID, leadID string) (*domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1::uuid AND lead_id = $2::uuid`

	l, err := scanLead(r.db.QueryRowContext(ctx, query, tenantID, leadID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("lead not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return l, nil
}

func (r *PostgresLeadsRepository) FindByPhoneVariant(ctx context.Context, tenantID, variant string) (*domain.Lead, error) {
	if variant == "" {
		return nil, nil
	}
	// Stored phones are free-form ("(42) 99989-6358"); match on the digit
	// suffix after stripping formatting. Newest row wins ties.
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE tenant_id = $1::uuid
		  AND regexp_replace(COALESCE(phone, ''), '\D', '', 'g') LIKE '%' || $2
		ORDER BY created_at DESC
		LIMIT 1`

	l, err := scanLead(r.db.QueryRowContext(ctx, query, tenantID, variant))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find lead by phone: %w", err)
	}
	return l, nil
}

func (r *PostgresLeadsRepository) SetContactUUID(ctx context.Context, tenantID, leadID, contactUUID string) error {
	query := `
		UPDATE leads SET contact_uuid = $3::uuid
		WHERE tenant_id = $1::uuid AND lead_id = $2::uuid AND contact_uuid IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, leadID, contactUUID); err != nil {
		return fmt.Errorf("failed to link lead to contact: %w", err)
	}
	return nil
}

func (r *PostgresLeadsRepository) SetProfilePic(ctx context.Context, tenantID, leadID, url string) error {
	query := `UPDATE leads SET profile_pic_url = $3 WHERE tenant_id = $1::uuid AND lead_id = $2::uuid`
	if _, err := r.db.ExecContext(ctx, query, tenantID, leadID, url); err != nil {
		return fmt.Errorf("failed to set lead profile pic: %w", err)
	}
	return nil
}

func (r *PostgresLeadsRepository) CreateLead(ctx context.Context, lead *domain.Lead) (string, error) {
	query := `
		INSERT INTO leads (tenant_id, contact_uuid, name, phone, email, source, status)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), COALESCE(NULLIF($7, ''), 'new'))
		RETURNING lead_id::text
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		lead.TenantID, lead.ContactUUID, lead.Name, lead.Phone, lead.Email, lead.Source, lead.Status,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create lead: %w", err)
	}
	return id, nil
}

func (r *PostgresLeadsRepository) ListUnlinkedWithPhone(ctx context.Context, tenantID string, limit int) ([]*domain.Lead, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE tenant_id = $1::uuid AND contact_uuid IS NULL AND COALESCE(phone, '') <> ''
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked leads: %w", err)
	}
	defer rows.Close()

	var out []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresLeadsRepository) ListWithDriveFolder(ctx context.Context, tenantID string) ([]*domain.Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE tenant_id = $1::uuid AND COALESCE(drive_folder_id, '') <> ''
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads with drive folder: %w", err)
	}
	defer rows.Close()

	var out []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresLeadsRepository) SetDriveFolder(ctx context.Context, tenantID, leadID, folderID string) error {
	query := `UPDATE leads SET drive_folder_id = $3 WHERE tenant_id = $1::uuid AND lead_id = $2::uuid`
	if _, err := r.db.ExecContext(ctx, query, tenantID, leadID, folderID); err != nil {
		return fmt.Errorf("failed to set lead drive folder: %w", err)
	}
	return nil
}

func (r *PostgresLeadsRepository) RecordDriveScan(ctx context.Context, tenantID, leadID string, at time.Time, newFiles int) error {
	query := `
		UPDATE leads
		SET drive_last_scan_at = $3, unread_files = unread_files + $4
		WHERE tenant_id = $1::uuid AND lead_id = $2::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, leadID, at, newFiles); err != nil {
		return fmt.Errorf("failed to record lead drive scan: %w", err)
	}
	return nil
}
