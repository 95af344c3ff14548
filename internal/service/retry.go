package service

import (
	"context"
	"errors"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"

	"go.uber.org/zap"
)

const (
	retryBudget    = 3
	retryBaseDelay = 300 * time.Millisecond
)

// ProviderCaller wraps outbound provider calls with a bounded retry and
// records per-tenant integration health after the final outcome.
type ProviderCaller struct {
	integrations repository.IntegrationsRepository
	logger       *zap.Logger
	sleep        func(time.Duration) // overridable in tests
}

func NewProviderCaller(integrations repository.IntegrationsRepository, logger *zap.Logger) *ProviderCaller {
	return &ProviderCaller{
		integrations: integrations,
		logger:       logger,
		sleep:        time.Sleep,
	}
}

// Call runs fn up to retryBudget times with exponential backoff. Only
// retryable failures (transport errors, 5xx, 429) are retried; terminal
// provider responses and domain errors return immediately. The final
// outcome, success or not, is written to the integration's health row.
func (c *ProviderCaller) Call(ctx context.Context, tenantID, provider string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryBudget; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				c.record(ctx, tenantID, provider, lastErr)
				return lastErr
			default:
			}
			c.sleep(delay)
		}

		lastErr = fn()
		if lastErr == nil {
			c.record(ctx, tenantID, provider, nil)
			return nil
		}
		if !retryable(lastErr) {
			break
		}
		c.logger.Warn("provider call failed, retrying",
			zap.String("tenant_id", tenantID),
			zap.String("provider", provider),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}

	c.record(ctx, tenantID, provider, lastErr)
	return lastErr
}

func (c *ProviderCaller) record(ctx context.Context, tenantID, provider string, callErr error) {
	if err := c.integrations.RecordHealth(ctx, tenantID, provider, callErr); err != nil {
		c.logger.Error("failed to record integration health",
			zap.String("tenant_id", tenantID),
			zap.String("provider", provider),
			zap.Error(err))
	}
}

func retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var te *TransientError
	return errors.As(err, &te)
}
