package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/idxstock/stockapi/internal/metrics"
)

const (
	// StreamKey is the Redis stream for usage records.
	StreamKey = "stream:api_usage"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:api_usage:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher enqueues usage records to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a usage publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "usage.publisher"),
		metrics: recorder,
	}
}

// Publish adds a record to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, payload Payload) (string, error) {
	data, err := payload.Encode()
	if err != nil {
		return "", err
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"payload": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// Record publishes without blocking the request. Failures are logged and
// counted as dropped; the quota counters are authoritative, the audit trail
// is best effort.
func (p *Publisher) Record(payload Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		if _, err := p.Publish(ctx, payload); err != nil {
			p.logger.Warn("failed to publish usage record",
				"user_id", payload.UserID,
				"endpoint", payload.Endpoint,
				"error", err,
			)
			p.metrics.IncUsagePublished("dropped")
			return
		}
		p.metrics.IncUsagePublished("success")
	}()
}
