package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist invalidates live access tokens ahead of their natural
// expiry, so logout takes effect immediately instead of at token expiry.
type TokenBlacklist interface {
	Blacklist(ctx context.Context, token string, expiration time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// RedisTokenBlacklist implements TokenBlacklist using Redis. Entries expire
// with the token itself, so the set never needs sweeping.
type RedisTokenBlacklist struct {
	client *redis.Client
}

// NewRedisTokenBlacklist creates a new RedisTokenBlacklist.
func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client}
}

// Blacklist adds a token to the blacklist with an expiration.
func (b *RedisTokenBlacklist) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	return b.client.Set(ctx, "blacklist:"+token, "revoked", expiration).Err()
}

// IsBlacklisted checks if a token is in the blacklist.
func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
