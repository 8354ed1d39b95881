package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisNotifier кладёт сообщение в Redis Stream; его читает почтовый воркер.
type RedisNotifier struct {
	client streamClient
	stream string
	maxLen int64
	logger *zap.SugaredLogger
}

// Connect создаёт клиента Redis по URL (redis://, rediss://) или host:port.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func NewRedisNotifier(redisURL, stream string, logger *zap.SugaredLogger) (*RedisNotifier, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis notifier requires REDIS_URL")
	}
	if stream == "" {
		return nil, fmt.Errorf("redis notifier requires a stream name")
	}
	client, err := Connect(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisNotifier{client: client, stream: stream, maxLen: 10000, logger: logger}, nil
}

func (n *RedisNotifier) Deliver(ctx context.Context, d KeyDelivery) error {
	payload, err := encode(d)
	if err != nil {
		return fmt.Errorf("encode key delivery: %w", err)
	}
	id, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"artifact_id": d.ArtifactID,
			"recipient":   d.RecipientAddress,
			"payload":     payload,
		},
	}).Result()
	if err != nil {
		n.logger.Warnw("redis key delivery failed", "artifact_id", d.ArtifactID, "error", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	n.logger.Infow("key delivered", "channel", "redis", "artifact_id", d.ArtifactID, "entry_id", id)
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
