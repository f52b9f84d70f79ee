package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketflow/internal/models"
)

const defaultRedisChannel = "marketflow:events"

const publishTimeout = 2 * time.Second

// RedisPublisher fans events out over a Redis pub/sub channel. Publish
// failures are counted and logged, never propagated upstream; the hot path
// must not stall on a slow broker.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	dropped atomic.Int64
	log     zerolog.Logger
}

// NewRedisPublisher connects a publisher from config.
func NewRedisPublisher(cfg SinkConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	return NewRedisPublisherWithClient(client, cfg.RedisChannel), nil
}

// NewRedisPublisherWithClient wraps an existing client, used by tests.
func NewRedisPublisherWithClient(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     log.With().Str("component", "redis_publisher").Logger(),
	}
}

// Process publishes each event as a JSON payload.
func (p *RedisPublisher) Process(ctx context.Context, events []models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for i := range events {
		payload, err := json.Marshal(&events[i])
		if err != nil {
			p.dropped.Add(1)
			p.log.Error().Err(err).Str("kind", string(events[i].Kind)).Msg("event marshal failed")
			continue
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			p.dropped.Add(1)
			p.log.Warn().Err(err).Str("kind", string(events[i].Kind)).Msg("event publish failed")
		}
	}
	return nil
}

// Dropped reports how many events could not be published.
func (p *RedisPublisher) Dropped() int64 { return p.dropped.Load() }

// Close releases the client connection.
func (p *RedisPublisher) Close() error { return p.client.Close() }
