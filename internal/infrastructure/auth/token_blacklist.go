package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist revokes tokens before they expire. Single tokens are
// revoked on logout and refresh; all of a partner's tokens when the
// partner is blocked or its password changes.
type TokenBlacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokePartner(ctx context.Context, partnerID string, ttl time.Duration) error
	// IsPartnerRevoked reports whether a token issued at issuedAt predates
	// the partner's last RevokePartner
	IsPartnerRevoked(ctx context.Context, partnerID string, issuedAt time.Time) (bool, error)
}

const defaultBlacklistPrefix = "gamehub:revoked:"

// RedisTokenBlacklist shares revocations between server instances
type RedisTokenBlacklist struct {
	client redis.UniversalClient
	prefix string
}

var _ TokenBlacklist = (*RedisTokenBlacklist)(nil)

func NewRedisTokenBlacklist(client redis.UniversalClient, prefix string) *RedisTokenBlacklist {
	if prefix == "" {
		prefix = defaultBlacklistPrefix
	}
	return &RedisTokenBlacklist{client: client, prefix: prefix}
}

func (b *RedisTokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.prefix+"jti:"+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+"jti:"+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token %s: %w", jti, err)
	}
	return n == 1, nil
}

// RevokePartner stores the revocation instant in milliseconds. ttl should
// cover the refresh token lifetime.
func (b *RedisTokenBlacklist) RevokePartner(ctx context.Context, partnerID string, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.prefix+"partner:"+partnerID, time.Now().UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke tokens of partner %s: %w", partnerID, err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsPartnerRevoked(ctx context.Context, partnerID string, issuedAt time.Time) (bool, error) {
	revokedAt, err := b.client.Get(ctx, b.prefix+"partner:"+partnerID).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked partner %s: %w", partnerID, err)
	}
	// iat has second precision
	return issuedAt.Unix() <= time.UnixMilli(revokedAt).Unix(), nil
}

// InMemoryTokenBlacklist keeps revocations in process, for tests and
// single-instance deployments without Redis
type InMemoryTokenBlacklist struct {
	mu       sync.Mutex
	tokens   map[string]time.Time
	partners map[string]revokedPartner
	now      func() time.Time
}

type revokedPartner struct {
	at      time.Time
	expires time.Time
}

var _ TokenBlacklist = (*InMemoryTokenBlacklist)(nil)

func NewInMemoryTokenBlacklist() *InMemoryTokenBlacklist {
	return &InMemoryTokenBlacklist{
		tokens:   make(map[string]time.Time),
		partners: make(map[string]revokedPartner),
		now:      time.Now,
	}
}

func (b *InMemoryTokenBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ttl > 0 {
		b.tokens[jti] = b.now().Add(ttl)
	}
	return nil
}

func (b *InMemoryTokenBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.tokens[jti]
	if ok && !b.now().Before(until) {
		delete(b.tokens, jti)
		return false, nil
	}
	return ok, nil
}

func (b *InMemoryTokenBlacklist) RevokePartner(_ context.Context, partnerID string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	entry := revokedPartner{at: now}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	b.partners[partnerID] = entry
	return nil
}

func (b *InMemoryTokenBlacklist) IsPartnerRevoked(_ context.Context, partnerID string, issuedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.partners[partnerID]
	if !ok {
		return false, nil
	}
	if !entry.expires.IsZero() && !b.now().Before(entry.expires) {
		delete(b.partners, partnerID)
		return false, nil
	}
	return !issuedAt.After(entry.at), nil
}
