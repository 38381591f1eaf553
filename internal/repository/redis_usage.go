package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const usageKeyTTL = 25 * time.Hour

// RedisUsageTracker accrues executed notional into hourly buckets so the
// trailing 24h total is shared across gateway instances. Each bucket key
// expires one hour after it leaves the window.
type RedisUsageTracker struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisUsageTracker(rc *RedisClient) *RedisUsageTracker {
	return &RedisUsageTracker{
		client: rc.Client,
		prefix: "pipegate:usage:",
		now:    time.Now,
	}
}

func (t *RedisUsageTracker) bucketKey(clientID string, hour int64) string {
	return fmt.Sprintf("%s%s:%d", t.prefix, clientID, hour)
}

func (t *RedisUsageTracker) Add(ctx context.Context, clientID string, notional decimal.Decimal) error {
	if notional.IsZero() {
		return nil
	}
	hour := t.now().UTC().Truncate(time.Hour).Unix()
	key := t.bucketKey(clientID, hour)

	pipe := t.client.Pipeline()
	pipe.IncrByFloat(ctx, key, notional.InexactFloat64())
	pipe.Expire(ctx, key, usageKeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisUsageTracker) WindowTotal(ctx context.Context, clientID string) (decimal.Decimal, error) {
	latest := t.now().UTC().Truncate(time.Hour).Unix()
	keys := make([]string, 0, 24)
	for i := int64(0); i < 24; i++ {
		keys = append(keys, t.bucketKey(clientID, latest-i*3600))
	}

	vals, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		total = total.Add(d)
	}
	return total, nil
}
