// Package cache holds short-lived shared state such as webhook delivery keys.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crmhub/internal/config"
)

// IdempotencyStore remembers keys for a TTL.
type IdempotencyStore interface {
	// MarkProcessed returns true when the key was not seen before.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget drops a key so a failed delivery can be retried.
	Forget(ctx context.Context, key string) error
	Close() error
}

// NewIdempotencyStore returns a Redis store when an address is configured,
// otherwise an in-memory one.
func NewIdempotencyStore(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (IdempotencyStore, error) {
	if cfg.Addr == "" {
		log.Info("idempotency store: in-memory")
		return NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info("idempotency store: redis", zap.String("addr", cfg.Addr))
	return NewRedisStore(client, ""), nil
}
