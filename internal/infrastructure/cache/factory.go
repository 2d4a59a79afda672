package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// Connect opens a client on cfg and pings it
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewIdempotencyStore shares transfer keys through Redis when a client is
// available. Without one, duplicates are only caught per instance.
func NewIdempotencyStore(client *redis.Client, log *zap.Logger) shared.IdempotencyStore {
	if client == nil {
		log.Warn("Using in-memory idempotency store, duplicate transfers are only caught per instance")
		return NewInMemoryIdempotencyStore()
	}
	return NewRedisIdempotencyStoreWithClient(client, "")
}
