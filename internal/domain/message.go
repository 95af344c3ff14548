package domain

import "time"

// Message direction.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message kinds.
const (
	MessageKindText     = "text"
	MessageKindImage    = "image"
	MessageKindAudio    = "audio"
	MessageKindVideo    = "video"
	MessageKindDocument = "document"
)

// Message statuses. Transitions are monotonic: queued < sent < delivered < read.
// failed is terminal and outside the ladder.
const (
	MessageStatusQueued    = "queued"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// StatusRank orders the delivery ladder; UPDATE statements only move a
// message to a higher rank, never backwards.
func StatusRank(status string) int {
	switch status {
	case MessageStatusQueued:
		return 0
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	default:
		return -1
	}
}

// Message is one WhatsApp message, inbound or outbound. Rows are append-only;
// only the status column changes after insert.
type Message struct {
	ID          string    `json:"message_id"`
	TenantID    string    `json:"tenant_id"`
	ContactUUID string    `json:"contact_uuid,omitempty"`
	LeadID      string    `json:"lead_id,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Phone       string    `json:"phone"`
	SenderName  string    `json:"sender_name,omitempty"`
	Direction   string    `json:"direction"`
	Kind        string    `json:"kind"`
	Body        string    `json:"body,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	Status      string    `json:"status"`
	ExternalID  string    `json:"external_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

/// Conversation is one inbox row: the latest message per contact plus the
// unread count of incoming messages not yet read.
type Conversation struct {
	ContactUUID     string    `json:"contact_uuid"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	LeadID          string    `json:"lead_id,omitempty"`
	ClientID        string    `json:"client_id,omitempty"`
	ProfilePicURL   string    `json:"profile_pic_url,omitempty"`
	LastMessage     string    `json:"last_message"`
	LastMessageKind string    `json:"last_message_kind"`
	LastDirection   string    `json:"last_direction"`
	LastStatus      string    `json:"last_status"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
}
