package domain

import "time"

// Contact is the canonical person identity, keyed by a normalized phone
// number and unique per (tenant_id, canonical_phone). Leads, clients and
// messages all hang off the contact UUID rather than each other.
type Contact struct {
	UUID           string    `json:"uuid"`
	TenantID       string    `json:"tenant_id"`
	CanonicalPhone string    `json:"canonical_phone"`
	ProfilePicURL  string    `json:"profile_pic_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
