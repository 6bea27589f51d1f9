package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "consentry/pkg/domain-errors"
)

// IssueLimiter throttles code issuance per contact so a hostile caller cannot
// flood a phone number or inbox with codes.
type IssueLimiter interface {
	// Allow returns nil when issuance may proceed, or a rate-limited domain
	// error when the contact's budget is spent.
	Allow(ctx context.Context, contactID string) error
}

// NoopLimiter allows everything. Used when redis is not configured.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) error { return nil }

// RedisLimiter counts issuances per contact in a fixed window using
// INCR + EXPIRE. A redis outage fails open: throttling is protection, not a
// correctness requirement, and issuance must keep working without it.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, contactID string) error {
	key := fmt.Sprintf("verification:issue:%s", contactID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}
	if count > l.limit {
		return dErrors.New(dErrors.CodeRateLimited, "too many verification codes requested")
	}
	return nil
}
