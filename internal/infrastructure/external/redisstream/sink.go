// Package redisstream publishes domain events to a Redis stream.
package redisstream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/domain/event"
)

// SinkName is the dispatcher name of the Redis sink
const SinkName = "redis_stream"

// Config holds Redis connection and stream settings
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Sink appends every event to a stream with XADD. Consumers must
// tolerate duplicates since the outbox delivers at least once.
type Sink struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewClient creates a Redis client for the sink
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
}

// NewSink creates a stream sink on an existing client
func NewSink(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *Sink {
	return &Sink{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Ping checks that Redis is reachable
func (s *Sink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Handle implements dispatcher.Handler
func (s *Sink) Handle(ctx context.Context, evt *event.Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"event_id":       evt.ID,
			"event_type":     string(evt.Type),
			"application_id": evt.ApplicationID,
			"timestamp":      evt.Timestamp.UTC().Format(time.RFC3339Nano),
			"payload":        string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to append event %s to %s: %w", evt.ID, s.stream, err)
	}

	s.logger.Debug("Event appended to stream",
		zap.String("stream", s.stream),
		zap.String("entry_id", id),
		zap.String("event_id", evt.ID))
	return nil
}

// Close closes the underlying client
func (s *Sink) Close() error {
	return s.client.Close()
}
