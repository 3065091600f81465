// Package cache keeps weekday rules in Redis so calendar and availability
// reads do not hit the database for data that changes rarely.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
	"service-tourbooking/internal/service"
)

const keyPrefix = "tourbooking:rules:"

// Client is the part of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RuleCache struct {
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ service.RuleCache = (*RuleCache)(nil)

func NewRuleCache(client Client, ttl time.Duration, logger *slog.Logger) *RuleCache {
	return &RuleCache{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient accepts a redis:// URL or a plain host:port address.
func NewRedisClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return redis.NewClient(&redis.Options{Addr: url})
	}
	return redis.NewClient(opts)
}

// Rules returns the cached rules of tourID, loading and storing them on a
// miss. Redis failures fall back to load; they never fail the read.
func (c *RuleCache) Rules(ctx context.Context, tourID uuid.UUID, load service.RuleLoadFunc) ([]domain.WeekdayRule, error) {
	key := keyPrefix + tourID.String()

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rules []domain.WeekdayRule
		if err := json.Unmarshal(cached, &rules); err == nil {
			return rules, nil
		}
		c.logger.WarnContext(ctx, "discarding unreadable cached rules", slog.String("tour_id", tourID.String()))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "rule cache read failed", slog.String("tour_id", tourID.String()), slog.Any("error", err))
	}

	rules, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if rules == nil {
		rules = []domain.WeekdayRule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return rules, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "rule cache write failed", slog.String("tour_id", tourID.String()), slog.Any("error", err))
	}
	return rules, nil
}

func (c *RuleCache) Invalidate(ctx context.Context, tourID uuid.UUID) error {
	return c.client.Del(ctx, keyPrefix+tourID.String()).Err()
}
