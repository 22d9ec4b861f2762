package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"vortex.app/relay/internal/domain"
)

// Producer publishes domain events onto the bus.
type Producer interface {
	Publish(ctx context.Context, evt domain.Event, opts PublishOptions) error
	Close() error
}

type redisProducer struct {
	client redis.UniversalClient
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client redis.UniversalClient, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Publish(ctx context.Context, evt domain.Event, opts PublishOptions) error {
	values, err := EncodeEvent(evt, opts)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", evt.ID, err)
	}

	msgID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return domain.NewUpstreamError("event bus", 0, fmt.Errorf("publish event: %w", err))
	}

	p.logger.InfoContext(ctx, "published event",
		"event_id", evt.ID,
		"correlation_id", evt.CorrelationID,
		"detail_type", evt.DetailType,
		"source", evt.Source,
		"message_id", msgID,
		"target", opts.Target)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
