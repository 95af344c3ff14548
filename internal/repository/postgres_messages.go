package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"

	"github.com/lib/pq"
)

// PostgresMessagesRepository is the Postgres implementation of MessagesRepository.
type PostgresMessagesRepository struct {
	db *sql.DB
}

func NewPostgresMessagesRepository(db *sql.DB) *PostgresMessagesRepository {
	return &PostgresMessagesRepository{db: db}
}

var _ MessagesRepository = (*PostgresMessagesRepository)(nil)

const messageColumns = `
	message_id::text,
	tenant_id::text,
	COALESCE(contact_uuid::text, '') as contact_uuid,
	COALESCE(lead_id::text, '') as lead_id,
	COALESCE(client_id::text, '') as client_id,
	phone,
	COALESCE(sender_name, '') as sender_name,
	direction,
	kind,
	COALESCE(body, '') as body,
	COALESCE(media_url, '') as media_url,
	status,
	COALESCE(external_id, '') as external_id,
	created_at`

// statusRankSQL mirrors domain.StatusRank; keeping the guard in the UPDATE's
// WHERE clause is what makes status transitions monotonic under races.
const statusRankSQL = `CASE %s WHEN 'queued' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE -1 END`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.ContactUUID,
		&m.LeadID,
		&m.ClientID,
		&m.Phone,
		&m.SenderName,
		&m.Direction,
		&m.Kind,
		&m.Body,
		&m.MediaURL,
		&m.Status,
		&m.ExternalID,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresMessagesRepository) Insert(ctx context.Context, msg *domain.Message) (string, error) {
	query := `
		INSERT INTO messages (tenant_id, contact_uuid, lead_id, client_id, phone, sender_name, direction, kind, body, media_url, status, external_id)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, NULLIF($12, ''))
		RETURNING message_id::text
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		msg.TenantID, msg.ContactUUID, msg.LeadID, msg.ClientID,
		msg.Phone, msg.SenderName, msg.Direction, msg.Kind,
		msg.Body, msg.MediaURL, msg.Status, msg.ExternalID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

func (r *PostgresMessagesRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error) {
	if externalID == "" {
		return nil, nil
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE tenant_id = $1::uuid AND external_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, tenantID, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message by external id: %w", err)
	}
	return m, nil
}

func (r *PostgresMessagesRepository) AdvanceStatus(ctx context.Context, tenantID, externalID, status string) (bool, error) {
	if domain.StatusRank(status) < 0 {
		return false, fmt.Errorf("not a delivery status: %q", status)
	}
	query := fmt.Sprintf(`
		UPDATE messages
		SET status = $3
		WHERE tenant_id = $1::uuid AND external_id = $2
		  AND status <> 'failed'
		  AND `+statusRankSQL+` < `+statusRankSQL,
		"status", "$3")

	res, err := r.db.ExecContext(ctx, query, tenantID, externalID, status)
	if err != nil {
		return false, fmt.Errorf("failed to advance message status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PostgresMessagesRepository) History(ctx context.Context, tenantID, contactUUID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + messageColumns + `
		FROM (
			SELECT * FROM messages
			WHERE tenant_id = $1::uuid AND contact_uuid = $2::uuid
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, contactUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresMessagesRepository) Inbox(ctx context.Context, tenantID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	// Latest message per contact, joined against the contact hub and its
	// lead/client roles for display names. DISTINCT ON keeps this a single
	// round trip.
	query := `
		SELECT
			m.contact_uuid::text,
			COALESCE(l.name, cl.name, c.canonical_phone) as display_name,
			c.canonical_phone,
			COALESCE(l.lead_id::text, '') as lead_id,
			COALESCE(cl.client_id::text, '') as client_id,
			COALESCE(c.profile_pic_url, '') as profile_pic_url,
			COALESCE(m.body, '') as body,
			m.kind,
			m.direction,
			m.status,
			m.created_at
		FROM (
			SELECT DISTINCT ON (contact_uuid) *
			FROM messages
			WHERE tenant_id = $1::uuid AND contact_uuid IS NOT NULL
			ORDER BY contact_uuid, created_at DESC
		) m
		JOIN contacts c ON c.uuid = m.contact_uuid
		LEFT JOIN leads l ON l.contact_uuid = m.contact_uuid AND l.tenant_id = $1::uuid
		LEFT JOIN clients cl ON cl.contact_uuid = m.contact_uuid AND cl.tenant_id = $1::uuid
		ORDER BY m.created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load inbox: %w", err)
	}
	defer rows.Close()

	var convs []*domain.Conversation
	var uuids []string
	for rows.Next() {
		var cv domain.Conversation
		err := rows.Scan(
			&cv.ContactUUID,
			&cv.Name,
			&cv.Phone,
			&cv.LeadID,
			&cv.ClientID,
			&cv.ProfilePicURL,
			&cv.LastMessage,
			&cv.LastMessageKind,
			&cv.LastDirection,
			&cv.LastStatus,
			&cv.LastMessageAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, &cv)
		uuids = append(uuids, cv.ContactUUID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	// Unread counts in one grouped query over the page's contacts.
	unreadQuery := `
		SELECT contact_uuid::text, COUNT(*)
		FROM messages
		WHERE tenant_id = $1::uuid
		  AND direction = 'in'
		  AND status <> 'read'
		  AND contact_uuid = ANY($2::uuid[])
		GROUP BY contact_uuid
	`
	unreadRows, err := r.db.QueryContext(ctx, unreadQuery, tenantID, pq.Array(uuids))
	if err != nil {
		return nil, fmt.Errorf("failed to count unread: %w", err)
	}
	defer unreadRows.Close()

	unread := make(map[string]int, len(convs))
	for unreadRows.Next() {
		var uuid string
		var n int
		if err := unreadRows.Scan(&uuid, &n); err != nil {
			return nil, fmt.Errorf("failed to scan unread count: %w", err)
		}
		unread[uuid] = n
	}
	if err := unreadRows.Err(); err != nil {
		return nil, err
	}
	for _, cv := range convs {
		cv.UnreadCount = unread[cv.ContactUUID]
	}
	return convs, nil
}

func (r *PostgresMessagesRepository) MarkRead(ctx context.Context, tenantID, contactUUID string, phoneVariants []string) (int64, error) {
	patterns := make([]string, 0, len(phoneVariants))
	for _, v := range phoneVariants {
		if v != "" {
			patterns = append(patterns, "%"+v)
		}
	}

	query := `
		UPDATE messages
		SET status = 'read'
		WHERE tenant_id = $1::uuid
		  AND direction = 'in'
		  AND status <> 'read'
		  AND (
			contact_uuid = NULLIF($2, '')::uuid
			OR (contact_uuid IS NULL AND regexp_replace(phone, '\D', '', 'g') LIKE ANY($3))
		  )
	`
	res, err := r.db.ExecContext(ctx, query, tenantID, contactUUID, pq.Array(patterns))
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresMessagesRepository) AdoptOrphans(ctx context.Context, tenantID, contactUUID, leadID string, phoneVariants []string) (int64, error) {
	patterns := make([]string, 0, len(phoneVariants))
	for _, v := range phoneVariants {
		if v != "" {
			patterns = append(patterns, "%"+v)
		}
	}
	if len(patterns) == 0 {
		return 0, nil
	}

	query := `
		UPDATE messages
		SET contact_uuid = $2::uuid, lead_id = NULLIF($3, '')::uuid
		WHERE tenant_id = $1::uuid
		  AND contact_uuid IS NULL
		  AND lead_id IS NULL
		  AND client_id IS NULL
		  AND regexp_replace(phone, '\D', '', 'g') LIKE ANY($4)
	`
	res, err := r.db.ExecContext(ctx, query, tenantID, contactUUID, leadID, pq.Array(patterns))
	if err != nil {
		return 0, fmt.Errorf("failed to adopt orphan messages: %w", err)
	}
	return res.RowsAffected()
}
