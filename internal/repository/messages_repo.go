package repository

import (
	"context"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// MessagesRepository provides data access to the message log. Rows are
// append-only; status is the only mutable column and only moves forward.
type MessagesRepository interface {
	Insert(ctx context.Context, msg *domain.Message) (string, error)

	// GetByExternalID resolves a message by the provider's message id.
	// Returns nil (no error) when absent.
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error)

	// AdvanceStatus applies a monotonic status transition keyed by
	// external id. Returns false when no row moved (absent message,
	// lower-or-equal status, or failed message).
	AdvanceStatus(ctx context.Context, tenantID, externalID, status string) (bool, error)

	// History returns a contact's messages, oldest first.
	History(ctx context.Context, tenantID, contactUUID string, limit int) ([]*domain.Message, error)

	// Inbox returns the most recent conversation per contact with unread
	// counts, newest first. One grouped query per concern; no per-row I/O.
	Inbox(ctx context.Context, tenantID string, limit int) ([]*domain.Conversation, error)

	// MarkRead marks incoming messages as read for a contact, including
	// orphan rows whose raw phone matches one of the digit variants.
	MarkRead(ctx context.Context, tenantID, contactUUID string, phoneVariants []string) (int64, error)

	// AdoptOrphans attaches contact/lead links to orphan messages matching
	// the phone variants (orphan-conversation conversion).
	AdoptOrphans(ctx context.Context, tenantID, contactUUID, leadID string, phoneVariants []string) (int64, error)
}
