package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Event streams consumed by downstream workers (notification fan-out,
// analytics). Publishing is best-effort: a broker outage never fails the
// request that produced the event.
const (
	StreamMessaging = "events:messaging"
	StreamBilling   = "events:billing"
	StreamDrive     = "events:drive"
)

// EventPublisher fans domain events out over Redis Streams.
type EventPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewEventPublisher(client *redis.Client, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{client: client, logger: logger}
}

// Publish appends one event to a stream. The payload is JSON under the
// "data" field with the event name and unix timestamp alongside.
func (p *EventPublisher) Publish(ctx context.Context, stream, event string, payload any) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal event payload",
			zap.String("stream", stream),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"event":     event,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("stream", stream),
			zap.String("event", event),
			zap.Error(err))
	}
}
