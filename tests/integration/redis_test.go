package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/infrastructure/auth"
	"github.com/gamehub/backend/internal/infrastructure/cache"
	"github.com/gamehub/backend/internal/infrastructure/event"
	"github.com/gamehub/backend/internal/interfaces/http/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// startRedis runs a throwaway Redis and returns a client on it
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	skipIfShort(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedis_SharedState(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	t.Run("token blacklist", func(t *testing.T) {
		bl := auth.NewRedisTokenBlacklist(client, "")

		require.NoError(t, bl.Revoke(ctx, "jti-1", time.Minute))
		revoked, err := bl.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = bl.IsRevoked(ctx, "jti-2")
		require.NoError(t, err)
		assert.False(t, revoked)

		issued := time.Now().Add(-time.Minute)
		require.NoError(t, bl.RevokePartner(ctx, "p1", time.Hour))
		stale, err := bl.IsPartnerRevoked(ctx, "p1", issued)
		require.NoError(t, err)
		assert.True(t, stale)

		fresh, err := bl.IsPartnerRevoked(ctx, "p1", time.Now().Add(2*time.Second))
		require.NoError(t, err)
		assert.False(t, fresh)

		other, err := bl.IsPartnerRevoked(ctx, "p2", issued)
		require.NoError(t, err)
		assert.False(t, other)
	})

	t.Run("idempotency keys are claimed once", func(t *testing.T) {
		store := cache.NewRedisIdempotencyStoreWithClient(client, "")

		var wg sync.WaitGroup
		var mu sync.Mutex
		won := 0
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.MarkProcessed(ctx, "transfer-key", time.Minute)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, won)

		require.NoError(t, store.Release(ctx, "transfer-key"))
		held, err := store.IsProcessed(ctx, "transfer-key")
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("rate limiter window", func(t *testing.T) {
		rl := middleware.NewRedisRateLimiter(client, "", 2, time.Minute)
		for i := range 2 {
			ok, remaining, err := rl.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1-i, remaining)
		}
		ok, _, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("balance feed", func(t *testing.T) {
		feed := event.NewRedisBalanceFeed(client, "", zap.NewNop())
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		got := make(chan event.BalanceUpdate, 1)
		go func() {
			_ = feed.Subscribe(subCtx, func(u event.BalanceUpdate) {
				select {
				case got <- u:
				default:
				}
			})
		}()

		update := event.BalanceUpdate{
			TransferID:    uuid.New(),
			ActorID:       uuid.New(),
			Direction:     "deposit",
			Target:        ledger.Party{Kind: ledger.SubjectPartner, ID: uuid.New()},
			Amount:        decimal.RequireFromString("12.50"),
			TargetBalance: decimal.RequireFromString("112.50"),
			OccurredAt:    time.Now().UTC().Truncate(time.Millisecond),
		}
		// the subscription is asynchronous; republish until it is live
		require.Eventually(t, func() bool {
			require.NoError(t, feed.Publish(ctx, update))
			select {
			case u := <-got:
				assert.Equal(t, update.TransferID, u.TransferID)
				assert.True(t, update.Amount.Equal(u.Amount))
				assert.Equal(t, update.Target, u.Target)
				return true
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 5*time.Second, 50*time.Millisecond)
	})
}
