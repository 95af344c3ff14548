package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

type fakeIntegrationsRepo struct {
	healthCalls []error
	integration *domain.ProviderIntegration

	status    string
	lastError string
}

func (f *fakeIntegrationsRepo) Get(ctx context.Context, tenantID, provider string) (*domain.ProviderIntegration, error) {
	return f.integration, nil
}
func (f *fakeIntegrationsRepo) Upsert(ctx context.Context, pi *domain.ProviderIntegration) error {
	return nil
}
func (f *fakeIntegrationsRepo) SetStatus(ctx context.Context, tenantID, provider, status, lastError string) error {
	f.status = status
	f.lastError = lastError
	return nil
}
func (f *fakeIntegrationsRepo) RecordHealth(ctx context.Context, tenantID, provider string, callErr error) error {
	f.healthCalls = append(f.healthCalls, callErr)
	return nil
}
func (f *fakeIntegrationsRepo) SetAccessToken(ctx context.Context, tenantID, provider, accessToken string, expiry time.Time) error {
	return nil
}
func (f *fakeIntegrationsRepo) SetRootFolder(ctx context.Context, tenantID, provider, folderID string) error {
	return nil
}
func (f *fakeIntegrationsRepo) ListConnected(ctx context.Context, provider string) ([]*domain.ProviderIntegration, error) {
	if f.integration == nil || f.integration.Status != domain.IntegrationConnected {
		return nil, nil
	}
	return []*domain.ProviderIntegration{f.integration}, nil
}
func (f *fakeIntegrationsRepo) Disconnect(ctx context.Context, tenantID, provider string) error {
	return nil
}

func newTestCaller(repo *fakeIntegrationsRepo) *ProviderCaller {
	c := NewProviderCaller(repo, zap.NewNop())
	c.sleep = func(time.Duration) {}
	return c
}

func TestProviderCallerSucceedsFirstTry(t *testing.T) {
	repo := &fakeIntegrationsRepo{}
	c := newTestCaller(repo)

	calls := 0
	err := c.Call(context.Background(), "t1", "messaging", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, repo.healthCalls, 1)
	assert.Nil(t, repo.healthCalls[0])
}

func TestProviderCallerRetriesRetryable(t *testing.T) {
	repo := &fakeIntegrationsRepo{}
	c := newTestCaller(repo)

	calls := 0
	err := c.Call(context.Background(), "t1", "messaging", func() error {
		calls++
		if calls < 3 {
			return &ProviderError{Provider: "messaging", Status: 503, Retryable: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, repo.healthCalls, 1)
	assert.Nil(t, repo.healthCalls[0])
}

func TestProviderCallerStopsAfterBudget(t *testing.T) {
	repo := &fakeIntegrationsRepo{}
	c := newTestCaller(repo)

	calls := 0
	err := c.Call(context.Background(), "t1", "messaging", func() error {
		calls++
		return &ProviderError{Provider: "messaging", Status: 500, Retryable: true}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, repo.healthCalls, 1)
	assert.Error(t, repo.healthCalls[0])
}

func TestProviderCallerDoesNotRetryTerminal(t *testing.T) {
	repo := &fakeIntegrationsRepo{}
	c := newTestCaller(repo)

	calls := 0
	err := c.Call(context.Background(), "t1", "messaging", func() error {
		calls++
		return &ProviderError{Provider: "messaging", Status: 400, Retryable: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestProviderCallerDoesNotRetryDomainErrors(t *testing.T) {
	repo := &fakeIntegrationsRepo{}
	c := newTestCaller(repo)

	calls := 0
	err := c.Call(context.Background(), "t1", "billing", func() error {
		calls++
		return errors.New("plain failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestProviderCallerRetriesTransient(t *testing.T) {
	repo := &fakeIntegrationsRepo{}
	c := newTestCaller(repo)

	calls := 0
	err := c.Call(context.Background(), "t1", "drive", func() error {
		calls++
		if calls == 1 {
			return &TransientError{Detail: "token refresh race"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
