package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/metrics"
)

// RedisDedup отмечает обработанные апдейты ключами с TTL.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.Deduplicator = (*RedisDedup)(nil)

// NewRedisDedup создаёт дедупликатор поверх Redis.
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDedup{client: client, ttl: ttl}
}

// FirstSeen ставит ключ через SETNX. false — ключ уже был.
func (d *RedisDedup) FirstSeen(ctx context.Context, channel domain.Channel, updateID string) (bool, error) {
	start := time.Now()
	ok, err := d.client.SetNX(ctx, dedupKey(channel, updateID), 1, d.ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "dedup", start, err)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func dedupKey(channel domain.Channel, updateID string) string {
	return "dedup:" + string(channel) + ":" + updateID
}
