package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultBalanceChannel is used when no channel is configured
const DefaultBalanceChannel = "gamehub:balances"

// BalanceUpdate is the message fanned out after a committed transfer
type BalanceUpdate struct {
	TransferID    uuid.UUID        `json:"transfer_id"`
	ActorID       uuid.UUID        `json:"actor_id"`
	Direction     string           `json:"direction"`
	Target        ledger.Party     `json:"target"`
	Amount        decimal.Decimal  `json:"amount"`
	TargetBalance decimal.Decimal  `json:"target_balance"`
	ActorBalance  *decimal.Decimal `json:"actor_balance,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// BalanceUpdateFromEvent converts a BalanceTransferred event
func BalanceUpdateFromEvent(e *ledger.BalanceTransferredEvent) BalanceUpdate {
	return BalanceUpdate{
		TransferID:    e.TransferID,
		ActorID:       e.ActorID(),
		Direction:     e.Direction,
		Target:        e.Target,
		Amount:        e.Amount,
		TargetBalance: e.TargetAfter,
		ActorBalance:  e.ActorAfter,
		OccurredAt:    e.OccurredAt(),
	}
}

// BalanceFeed publishes balance updates and lets dashboards subscribe to them
type BalanceFeed interface {
	Publish(ctx context.Context, update BalanceUpdate) error
	// Subscribe blocks, invoking fn for every update until ctx is done
	Subscribe(ctx context.Context, fn func(BalanceUpdate)) error
}

// FeedHandler is the event bus handler forwarding BalanceTransferred
// events to a feed.
type FeedHandler struct {
	feed   BalanceFeed
	logger *zap.Logger
}

func NewFeedHandler(feed BalanceFeed, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: logger}
}

func (h *FeedHandler) EventTypes() []string {
	return []string{ledger.EventTypeBalanceTransferred}
}

func (h *FeedHandler) Handle(ctx context.Context, e shared.DomainEvent) error {
	transferred, ok := e.(*ledger.BalanceTransferredEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", e, e.EventType())
	}
	return h.feed.Publish(ctx, BalanceUpdateFromEvent(transferred))
}

// RedisBalanceFeed fans updates out over a Redis pub/sub channel so every
// API instance sees every transfer.
type RedisBalanceFeed struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBalanceFeed uses an existing client. The caller owns the client.
func NewRedisBalanceFeed(client *redis.Client, channel string, logger *zap.Logger) *RedisBalanceFeed {
	if channel == "" {
		channel = DefaultBalanceChannel
	}
	return &RedisBalanceFeed{client: client, channel: channel, logger: logger}
}

func (f *RedisBalanceFeed) Publish(ctx context.Context, update BalanceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal balance update: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		f.logger.Error("Failed to publish balance update",
			zap.String("channel", f.channel),
			zap.String("transfer_id", update.TransferID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to publish balance update: %w", err)
	}
	return nil
}

func (f *RedisBalanceFeed) Subscribe(ctx context.Context, fn func(BalanceUpdate)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var update BalanceUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				f.logger.Warn("Dropping malformed balance update", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			fn(update)
		}
	}
}

// LocalBalanceFeed fans updates out inside one process. Used when Redis is
// disabled.
type LocalBalanceFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan BalanceUpdate
}

func NewLocalBalanceFeed() *LocalBalanceFeed {
	return &LocalBalanceFeed{subs: make(map[int]chan BalanceUpdate)}
}

// Publish never blocks; a subscriber whose buffer is full misses the update.
func (f *LocalBalanceFeed) Publish(_ context.Context, update BalanceUpdate) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- update:
		default:
		}
	}
	return nil
}

func (f *LocalBalanceFeed) Subscribe(ctx context.Context, fn func(BalanceUpdate)) error {
	ch := make(chan BalanceUpdate, 64)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-ch:
			fn(u)
		}
	}
}

// Subscribers returns the number of active local subscriptions
func (f *LocalBalanceFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

var (
	_ BalanceFeed         = (*RedisBalanceFeed)(nil)
	_ BalanceFeed         = (*LocalBalanceFeed)(nil)
	_ shared.EventHandler = (*FeedHandler)(nil)
)
