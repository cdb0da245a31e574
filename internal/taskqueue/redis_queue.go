package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a sorted set keyed by:
//
//	<prefix>tasks
//
// Members are gob-encoded Task structs scored by NotBefore (unix
// nanoseconds). A consumer claims a due member with ZREM; only the consumer
// whose ZREM removed it gets the task.
type RedisQueue struct {
	client       redis.UniversalClient
	key          string
	pollInterval time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "durable:").
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "durable:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "tasks",
		pollInterval: defaultPollInterval,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// Enqueue adds a task to the sorted set (ZADD).
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	prepare(&t)
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(t.NotBefore.UnixNano()),
		Member: data,
	}).Err()
}

// Dequeue polls for due members until one is claimed or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		due, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(time.Now().UnixNano(), 10),
			Count: 16,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}

		for _, member := range due {
			removed, err := q.client.ZRem(ctx, q.key, member).Result()
			if err != nil {
				return nil, err
			}
			if removed == 0 {
				// Claimed by another consumer.
				continue
			}
			task, err := DecodeTask([]byte(member))
			if err != nil {
				return nil, err
			}
			task.Attempts++
			return task, nil
		}

		if err := sleep(ctx, tmr, q.pollInterval); err != nil {
			return nil, err
		}
	}
}

// Len returns the approximate number of tasks queued (ZCARD).
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		// For a Len() helper, it's better to log and return 0 than panic.
		slog.Default().Warn("redis queue length failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
