package domain

import "time"

// Lead is a prospect in the sales funnel. ContactUUID is the only link to
// the messaging side; it is set lazily by the contact resolver.
type Lead struct {
	ID              string     `json:"lead_id"`
	TenantID        string     `json:"tenant_id"`
	ContactUUID     string     `json:"contact_uuid,omitempty"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	Source          string     `json:"source,omitempty"`
	Status          string     `json:"status,omitempty"`
	PipelineStageID string     `json:"pipeline_stage_id,omitempty"`
	AssignedUserID  string     `json:"assigned_user_id,omitempty"`
	ProfilePicURL   string     `json:"profile_pic_url,omitempty"`
	DriveFolderID   string     `json:"drive_folder_id,omitempty"`
	DriveLastScanAt *time.Time `json:"drive_last_scan_at,omitempty"`
	UnreadFiles     int        `json:"unread_files"`
	CreatedAt       time.Time  `json:"created_at"`
}
