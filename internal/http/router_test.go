package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

type stubIntegrationsRepo struct{}

func (s *stubIntegrationsRepo) Get(ctx context.Context, tenantID, provider string) (*domain.ProviderIntegration, error) {
	return nil, nil
}
func (s *stubIntegrationsRepo) Upsert(ctx context.Context, pi *domain.ProviderIntegration) error {
	return nil
}
func (s *stubIntegrationsRepo) SetStatus(ctx context.Context, tenantID, provider, status, lastError string) error {
	return nil
}
func (s *stubIntegrationsRepo) RecordHealth(ctx context.Context, tenantID, provider string, callErr error) error {
	return nil
}
func (s *stubIntegrationsRepo) SetAccessToken(ctx context.Context, tenantID, provider, accessToken string, expiry time.Time) error {
	return nil
}
func (s *stubIntegrationsRepo) SetRootFolder(ctx context.Context, tenantID, provider, folderID string) error {
	return nil
}
func (s *stubIntegrationsRepo) ListConnected(ctx context.Context, provider string) ([]*domain.ProviderIntegration, error) {
	return nil, nil
}
func (s *stubIntegrationsRepo) Disconnect(ctx context.Context, tenantID, provider string) error {
	return nil
}

func TestCronDriveSyncAcceptsGetAndPost(t *testing.T) {
	sync := service.NewSyncService(&stubIntegrationsRepo{}, nil, nil, nil, nil, nil,
		service.NewEventPublisher(nil, zap.NewNop()), zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterDriveRoutes(NewDriveHandler(nil, sync, zap.NewNop()))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/api/cron/drive-sync", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", method, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"errors":[]`) {
			t.Fatalf("%s: expected an errors list in the summary, got: %s", method, w.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/cron/drive-sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE: expected 405, got %d", w.Code)
	}
}
