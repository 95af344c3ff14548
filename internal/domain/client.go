package domain

import "time"

// Client health states.
const (
	ClientHealthGreen  = "green"
	ClientHealthYellow = "yellow"
	ClientHealthRed    = "red"
)

// Client is a won account. A client converted from a lead inherits the
// lead's contact UUID, so message history survives the conversion.
type Client struct {
	ID              string     `json:"client_id"`
	TenantID        string     `json:"tenant_id"`
	ContactUUID     string     `json:"contact_uuid,omitempty"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	Service         string     `json:"service,omitempty"`
	Health          string     `json:"health,omitempty"`
	ProfilePicURL   string     `json:"profile_pic_url,omitempty"`
	DriveFolderID   string     `json:"drive_folder_id,omitempty"`
	DriveLastScanAt *time.Time `json:"drive_last_scan_at,omitempty"`
	UnreadFiles     int        `json:"unread_files"`
	CreatedAt       time.Time  `json:"created_at"`
}
