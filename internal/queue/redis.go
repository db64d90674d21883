package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

const (
	pendingKey  = "outbreak:jobs:pending"
	inflightKey = "outbreak:jobs:inflight"
	delayedKey  = "outbreak:jobs:delayed"
	deadKey     = "outbreak:jobs:dead"
	bodyPrefix  = "outbreak:jobs:body:"

	dequeueBlock = 250 * time.Millisecond
)

// claimScript pops the next pending job id and records its lease in one
// atomic step, so a job is always in exactly one of pending, inflight,
// delayed, or dead no matter where a worker dies.
var claimScript = redis.NewScript(`
local id = redis.call("RPOP", KEYS[1])
if not id then
	return false
end
redis.call("ZADD", KEYS[2], ARGV[1], id)
return id
`)

type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue parses redisURL, verifies connectivity, and returns the
// queue bound to that server.
func NewRedisQueue(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.MaxRetries = 3

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisQueue{rdb: rdb}, nil
}

func bodyKey(id string) string {
	return bodyPrefix + id
}

func (q *RedisQueue) saveBody(ctx context.Context, job *models.NotificationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.Set(ctx, bodyKey(job.ID), body, 0).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	if err := q.saveBody(ctx, job); err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, pendingKey, job.ID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, lease time.Duration) (*models.NotificationJob, error) {
	deadline := time.Now().Add(lease).UnixMilli()
	res, err := claimScript.Run(ctx, q.rdb, []string{pendingKey, inflightKey}, deadline).Result()
	if err == redis.Nil {
		// Nothing pending. Pace the caller's poll loop before reporting empty.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dequeueBlock):
			return nil, ErrEmpty
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	id, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("dequeue: unexpected claim reply %T", res)
	}

	body, err := q.rdb.Get(ctx, bodyKey(id)).Result()
	if err == redis.Nil {
		// Body was deleted out from under us (completed elsewhere).
		q.rdb.ZRem(ctx, inflightKey, id)
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job models.NotificationJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *models.NotificationJob) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, inflightKey, job.ID)
	pipe.Del(ctx, bodyKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, job *models.NotificationJob, delay time.Duration) error {
	if err := q.saveBody(ctx, job); err != nil {
		return err
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, inflightKey, job.ID)
	pipe.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule retry for job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *models.NotificationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, deadKey, body)
	pipe.ZRem(ctx, inflightKey, job.ID)
	pipe.Del(ctx, bodyKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	return q.moveDue(ctx, delayedKey)
}

func (q *RedisQueue) ReapExpired(ctx context.Context) (int, error) {
	return q.moveDue(ctx, inflightKey)
}

// moveDue returns every member of the sorted set whose score (a millisecond
// deadline) has passed to the pending list.
func (q *RedisQueue) moveDue(ctx context.Context, key string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", key, err)
	}

	moved := 0
	for _, id := range ids {
		// ZRem first so two maintenance loops cannot both requeue it.
		removed, err := q.rdb.ZRem(ctx, key, id).Result()
		if err != nil {
			return moved, fmt.Errorf("remove %s from %s: %w", id, key, err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, pendingKey, id).Err(); err != nil {
			return moved, fmt.Errorf("requeue %s: %w", id, err)
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}
