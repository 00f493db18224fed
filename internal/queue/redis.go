package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKey is the Redis list the grading jobs live on.
const defaultKey = "gradepipe:grading:jobs"

// popTimeout bounds each BRPOP so Dequeue notices context cancellation.
const popTimeout = 2 * time.Second

// RedisQueue is a Redis-list-backed Queue. LPUSH/BRPOP gives at-least-once
// delivery across any number of worker processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

// NewRedisQueue creates a queue on the given Redis client. An empty key
// uses the default list name.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultKey
	}

	slog.Info("Redis job queue initialized", "key", key)

	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes the job onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if q.closed.Load() {
		return ErrClosed
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Dequeue blocks on BRPOP in short rounds so the caller's context is
// honored between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if q.closed.Load() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			// A malformed payload can't be retried meaningfully; drop it.
			slog.Error("Dropping undecodable job payload", "error", err)
			continue
		}

		return &job, nil
	}
}

// Close marks the queue closed. The Redis connection is owned by the caller
// and stays open.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

// Depth returns the number of jobs waiting on the list.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
