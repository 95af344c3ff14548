package service

import (
	"context"
	"fmt"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"

	"go.uber.org/zap"
)

// scanDebounce is the minimum interval between scans of one folder; cron
// fires more often than folders change.
const scanDebounce = 5 * time.Minute

// SyncSummary is one sweep's outcome. Errors carries one entry per
// failed tenant or folder so operators can see what went wrong without
// digging through logs.
type SyncSummary struct {
	Tenants  int      `json:"tenants"`
	Scanned  int      `json:"scanned"`
	Skipped  int      `json:"skipped"`
	NewFiles int      `json:"new_files"`
	Errors   []string `json:"errors"`
}

// SyncService sweeps every connected tenant's watched drive folders and
// records newly-appeared files.
type SyncService struct {
	integrations repository.IntegrationsRepository
	leads        repository.LeadsRepository
	clients      repository.ClientsRepository
	drive        repository.DriveRepository
	driveSvc     *DriveService
	client       *DriveClient
	events       *EventPublisher
	logger       *zap.Logger
}

func NewSyncService(
	integrations repository.IntegrationsRepository,
	leads repository.LeadsRepository,
	clients repository.ClientsRepository,
	drive repository.DriveRepository,
	driveSvc *DriveService,
	client *DriveClient,
	events *EventPublisher,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		integrations: integrations,
		leads:        leads,
		clients:      clients,
		drive:        drive,
		driveSvc:     driveSvc,
		client:       client,
		events:       events,
		logger:       logger,
	}
}

// Run sweeps all tenants. One folder's failure does not stop the tenant;
// a token failure stops the tenant but not the sweep.
func (s *SyncService) Run(ctx context.Context) (*SyncSummary, error) {
	summary := &SyncSummary{Errors: []string{}}

	connected, err := s.integrations.ListConnected(ctx, domain.ProviderDrive)
	if err != nil {
		return nil, err
	}

	for _, pi := range connected {
		summary.Tenants++
		if err := s.syncTenant(ctx, pi.TenantID, summary); err != nil {
			// Bad grant or expired token: skip the tenant, keep sweeping.
			summary.Errors = append(summary.Errors, fmt.Sprintf("tenant %s: %v", pi.TenantID, err))
			s.logger.Warn("tenant drive sync aborted",
				zap.String("tenant_id", pi.TenantID),
				zap.Error(err))
		}
	}

	s.logger.Info("drive sync sweep finished",
		zap.Int("tenants", summary.Tenants),
		zap.Int("scanned", summary.Scanned),
		zap.Int("skipped", summary.Skipped),
		zap.Int("new_files", summary.NewFiles),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

func (s *SyncService) syncTenant(ctx context.Context, tenantID string, summary *SyncSummary) error {
	accessToken, err := s.driveSvc.accessToken(ctx, tenantID)
	if err != nil {
		return err
	}
	now := time.Now()

	clients, err := s.clients.ListWithDriveFolder(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, client := range clients {
		if recentlyScanned(client.DriveLastScanAt, now) {
			summary.Skipped++
			continue
		}
		newFiles, err := s.scanFolder(ctx, tenantID, accessToken, client.DriveFolderID, client.ID, "")
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("client %s: %v", client.ID, err))
			s.logger.Warn("client folder scan failed",
				zap.String("tenant_id", tenantID),
				zap.String("client_id", client.ID),
				zap.Error(err))
			continue
		}
		summary.Scanned++
		summary.NewFiles += newFiles
		if err := s.clients.RecordDriveScan(ctx, tenantID, client.ID, now, newFiles); err != nil {
			return err
		}
	}

	leads, err := s.leads.ListWithDriveFolder(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		if recentlyScanned(lead.DriveLastScanAt, now) {
			summary.Skipped++
			continue
		}
		newFiles, err := s.scanFolder(ctx, tenantID, accessToken, lead.DriveFolderID, "", lead.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("lead %s: %v", lead.ID, err))
			s.logger.Warn("lead folder scan failed",
				zap.String("tenant_id", tenantID),
				zap.String("lead_id", lead.ID),
				zap.Error(err))
			continue
		}
		summary.Scanned++
		summary.NewFiles += newFiles
		if err := s.leads.RecordDriveScan(ctx, tenantID, lead.ID, now, newFiles); err != nil {
			return err
		}
	}
	return nil
}

func recentlyScanned(lastScan *time.Time, now time.Time) bool {
	return lastScan != nil && now.Sub(*lastScan) < scanDebounce
}

// scanFolder lists a folder and records each non-folder file; the return
// is how many were seen for the first time.
func (s *SyncService) scanFolder(ctx context.Context, tenantID, accessToken, folderID, clientID, leadID string) (int, error) {
	files, err := s.client.ListFiles(accessToken, folderID)
	if err != nil {
		return 0, err
	}

	newFiles := 0
	for _, file := range files {
		if file.MimeType == driveFolderMime {
			continue
		}
		ev := &domain.DriveFileEvent{
			TenantID:     tenantID,
			ClientID:     clientID,
			LeadID:       leadID,
			FileID:       file.ID,
			FileName:     file.Name,
			Mime:         file.MimeType,
			ViewURL:      file.WebViewLink,
			CreatedTime:  file.CreatedTime,
			ModifiedTime: file.ModifiedTime,
		}
		inserted, err := s.drive.UpsertFileEvent(ctx, ev)
		if err != nil {
			return newFiles, err
		}
		if inserted {
			newFiles++
			s.events.Publish(ctx, StreamDrive, "file_detected", ev)
		}
	}
	return newFiles, nil
}
