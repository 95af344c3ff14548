package repository

import (
	"context"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// DriveRepository provides data access to folder templates and the
// observed-file ledger backing drive sync.
type DriveRepository interface {
	// GetTemplate returns nil (no error) when absent.
	GetTemplate(ctx context.Context, templateID string) (*domain.DriveFolderTemplate, error)

	// ListTemplates returns a tenant's own enabled templates plus the
	// global templates the tenant is allowed to use.
	ListTemplates(ctx context.Context, tenantID string, allowedGlobalIDs []string) ([]*domain.DriveFolderTemplate, error)

	CreateTemplate(ctx context.Context, t *domain.DriveFolderTemplate) (string, error)

	SetTemplateEnabled(ctx context.Context, tenantID, templateID string, enabled bool) error

	// UpsertFileEvent records a file observation. Returns true when the
	// file was seen for the first time; re-observations refresh
	// modified_time only.
	UpsertFileEvent(ctx context.Context, ev *domain.DriveFileEvent) (bool, error)

	// ListRecentFileEvents returns a tenant's newest observations.
	ListRecentFileEvents(ctx context.Context, tenantID string, limit int) ([]*domain.DriveFileEvent, error)
}
