package domain

import (
	"encoding/json"
	"time"
)

// Template scopes.
const (
	TemplateScopeTenant = "tenant"
	TemplateScopeGlobal = "global"
)

// FolderNode is one node of a folder template tree.
type FolderNode struct {
	Name     string       `json:"name"`
	Children []FolderNode `json:"children,omitempty"`
}

// DriveFolderTemplate is a reusable folder tree provisioned for new
// clients/leads. Global templates are visible to tenants whose
// allowed_global_template_ids contains the template id.
type DriveFolderTemplate struct {
	ID        string       `json:"template_id"`
	Scope     string       `json:"scope"`
	TenantID  string       `json:"tenant_id,omitempty"`
	Name      string       `json:"name"`
	Structure []FolderNode `json:"structure"`
	Enabled   bool         `json:"enabled"`
	CreatedAt time.Time    `json:"created_at"`
}

// StructureJSON marshals the tree for the JSONB column.
func (t *DriveFolderTemplate) StructureJSON() []byte {
	b, err := json.Marshal(t.Structure)
	if err != nil {
		return []byte("[]")
	}
	return b
}

// DriveFileEvent records one file observed in a watched folder.
// Unique per (tenant_id, file_id); re-observations update modified_time only.
type DriveFileEvent struct {
	ID           string     `json:"event_id"`
	TenantID     string     `json:"tenant_id"`
	ClientID     string     `json:"client_id,omitempty"`
	LeadID       string     `json:"lead_id,omitempty"`
	FileID       string     `json:"file_id"`
	FileName     string     `json:"file_name"`
	Mime         string     `json:"mime,omitempty"`
	ViewURL      string     `json:"view_url,omitempty"`
	CreatedTime  *time.Time `json:"created_time,omitempty"`
	ModifiedTime *time.Time `json:"modified_time,omitempty"`
	DetectedAt   time.Time  `json:"detected_at"`
}
