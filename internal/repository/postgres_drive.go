package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"

	"github.com/lib/pq"
)

// PostgresDriveRepository is the Postgres implementation of DriveRepository.
type PostgresDriveRepository struct {
	db *sql.DB
}

func NewPostgresDriveRepository(db *sql.DB) *PostgresDriveRepository {
	return &PostgresDriveRepository{db: db}
}

var _ DriveRepository = (*PostgresDriveRepository)(nil)

const templateColumns = `
	template_id::text,
	scope,
	COALESCE(tenant_id::text, '') as tenant_id,
	name,
	structure,
	enabled,
	created_at`

func scanTemplate(row interface{ Scan(...any) error }) (*domain.DriveFolderTemplate, error) {
	var t domain.DriveFolderTemplate
	var structure []byte
	err := row.Scan(
		&t.ID,
		&t.Scope,
		&t.TenantID,
		&t.Name,
		&structure,
		&t.Enabled,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(structure, &t.Structure); err != nil {
		return nil, fmt.Errorf("corrupt template structure: %w", err)
	}
	return &t, nil
}

func (r *PostgresDriveRepository) GetTemplate(ctx context.Context, templateID string) (*domain.DriveFolderTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM drive_folder_templates WHERE template_id = $1::uuid`

	t, err := scanTemplate(r.db.QueryRowContext(ctx, query, templateID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get folder template: %w", err)
	}
	return t, nil
}

func (r *PostgresDriveRepository) ListTemplates(ctx context.Context, tenantID string, allowedGlobalIDs []string) ([]*domain.DriveFolderTemplate, error) {
	query := `SELECT ` + templateColumns + `
		FROM drive_folder_templates
		WHERE enabled
		  AND (
			(scope = 'tenant' AND tenant_id = $1::uuid)
			OR (scope = 'global' AND template_id::text = ANY($2))
		  )
		ORDER BY scope, name`

	rows, err := r.db.QueryContext(ctx, query, tenantID, pq.Array(allowedGlobalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list folder templates: %w", err)
	}
	defer rows.Close()

	var out []*domain.DriveFolderTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresDriveRepository) CreateTemplate(ctx context.Context, t *domain.DriveFolderTemplate) (string, error) {
	scope := t.Scope
	if scope == "" {
		scope = domain.TemplateScopeTenant
	}
	query := `
		INSERT INTO drive_folder_templates (scope, tenant_id, name, structure, enabled)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4::jsonb, $5)
		RETURNING template_id::text
	`
	var id string
	err := r.db.QueryRowContext(ctx, query, scope, t.TenantID, t.Name, string(t.StructureJSON()), t.Enabled).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create folder template: %w", err)
	}
	return id, nil
}

func (r *PostgresDriveRepository) SetTemplateEnabled(ctx context.Context, tenantID, templateID string, enabled bool) error {
	query := `
		UPDATE drive_folder_templates
		SET enabled = $3
		WHERE template_id = $1::uuid AND scope = 'tenant' AND tenant_id = $2::uuid
	`
	if _, err := r.db.ExecContext(ctx, query, templateID, tenantID, enabled); err != nil {
		return fmt.Errorf("failed to toggle folder template: %w", err)
	}
	return nil
}

func (r *PostgresDriveRepository) UpsertFileEvent(ctx context.Context, ev *domain.DriveFileEvent) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	query := `
		INSERT INTO drive_file_events (tenant_id, client_id, lead_id, file_id, file_name, mime, view_url, created_time, modified_time)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
		ON CONFLICT (tenant_id, file_id)
		DO UPDATE SET modified_time = EXCLUDED.modified_time
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		ev.TenantID, ev.ClientID, ev.LeadID, ev.FileID, ev.FileName,
		ev.Mime, ev.ViewURL, ev.CreatedTime, ev.ModifiedTime,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert drive file event: %w", err)
	}
	return inserted, nil
}

func (r *PostgresDriveRepository) ListRecentFileEvents(ctx context.Context, tenantID string, limit int) ([]*domain.DriveFileEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id::text,
		       tenant_id::text,
		       COALESCE(client_id::text, '') as client_id,
		       COALESCE(lead_id::text, '') as lead_id,
		       file_id,
		       file_name,
		       COALESCE(mime, '') as mime,
		       COALESCE(view_url, '') as view_url,
		       created_time,
		       modified_time,
		       detected_at
		FROM drive_file_events
		WHERE tenant_id = $1::uuid
		ORDER BY detected_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list drive file events: %w", err)
	}
	defer rows.Close()

	var out []*domain.DriveFileEvent
	for rows.Next() {
		var ev domain.DriveFileEvent
		err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.ClientID, &ev.LeadID,
			&ev.FileID, &ev.FileName, &ev.Mime, &ev.ViewURL,
			&ev.CreatedTime, &ev.ModifiedTime, &ev.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drive file event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
