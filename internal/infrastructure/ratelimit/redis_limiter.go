package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/convo/backend/internal/domain/orders"
)

// RedisLimiter is a fixed-window limiter backed by Redis, for deployments
// where multiple instances share limiter state. Counters use INCR with an
// expiry set on first increment.
//
// The limiter fails open: any Redis error yields an allowed decision flagged
// Degraded, because a broken limiter must throttle observability, not users.
type RedisLimiter struct {
	client     *redis.Client
	thresholds Thresholds
	keyPrefix  string
	logger     *zap.Logger
}

// NewRedisLimiter creates a Redis-backed limiter using an existing client
func NewRedisLimiter(client *redis.Client, t Thresholds, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client:     client,
		thresholds: t,
		keyPrefix:  "lookup:ratelimit:",
		logger:     logger,
	}
}

// Consume charges one lookup attempt against every applicable scope
func (l *RedisLimiter) Consume(ctx context.Context, ip, userID string, orderID int64) orders.Decision {
	type scopeCheck struct {
		scope orders.RateLimitScope
		key   string
		limit int
	}

	checks := make([]scopeCheck, 0, 3)
	if ip != "" {
		checks = append(checks, scopeCheck{orders.ScopeIP, "ip:" + ip, l.thresholds.IPLimit})
	}
	if userID != "" {
		checks = append(checks, scopeCheck{orders.ScopeUser, "user:" + userID, l.thresholds.UserLimit})
	}
	if orderID > 0 {
		checks = append(checks, scopeCheck{orders.ScopeOrder, "order:" + strconv.FormatInt(orderID, 10), l.thresholds.OrderLimit})
	}

	for _, check := range checks {
		if check.limit <= 0 {
			continue
		}
		count, err := l.increment(ctx, l.keyPrefix+check.key)
		if err != nil {
			l.logger.Warn("rate limiter degraded, failing open",
				zap.String("scope", string(check.scope)),
				zap.Error(err))
			return orders.Decision{Allowed: true, Degraded: true}
		}
		if count > int64(check.limit) {
			return orders.Decision{Allowed: false, BlockedBy: check.scope}
		}
	}

	return orders.Decision{Allowed: true}
}

func (l *RedisLimiter) increment(ctx context.Context, key string) (int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.thresholds.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit increment failed: %w", err)
	}
	return incr.Val(), nil
}

// Window returns the configured window, for header reporting
func (l *RedisLimiter) Window() time.Duration {
	return l.thresholds.Window
}

var _ orders.RateLimiter = (*RedisLimiter)(nil)
