package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/metrics"
)

// RedisEventQueue кладёт события о ставках в Redis list. Используется, когда брокеров нет.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	if key == "" {
		key = "bet_events"
	}
	return &RedisEventQueue{client: client, key: key}
}

// PublishBetCreated публикует событие в очередь.
func (q *RedisEventQueue) PublishBetCreated(ctx context.Context, evt domain.BetCreatedEvent) error {
	_, payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди.
func (q *RedisEventQueue) Pop(ctx context.Context) (domain.BetCreatedEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.BetCreatedEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.BetCreatedEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.BetCreatedEvent{}, err
		}
		if len(res) != 2 {
			return domain.BetCreatedEvent{}, errors.New("redis queue: unexpected response")
		}
		var evt domain.BetCreatedEvent
		if err := json.Unmarshal([]byte(res[1]), &evt); err != nil {
			return domain.BetCreatedEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return evt, nil
	}
}
