package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Dequeue when no job arrived within the wait window.
var ErrEmpty = errors.New("queue empty")

// JobQueue is the durable hand-off between the upload path and the
// processing workers, plus per-job progress reporting.
type JobQueue interface {
	Enqueue(ctx context.Context, imageID uuid.UUID) error
	// Dequeue blocks up to wait for the next job.
	Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, error)
	Length(ctx context.Context) (int64, error)

	SetProgress(ctx context.Context, imageID uuid.UUID, percent int) error
	GetProgress(ctx context.Context, imageID uuid.UUID) (int, error)
	ClearProgress(ctx context.Context, imageID uuid.UUID) error

	Ping(ctx context.Context) error
}

const (
	queueKey          = "processing:queue"
	progressKeyPrefix = "processing:progress:"
	progressTTL       = time.Hour
)

type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, imageID uuid.UUID) error {
	if err := q.client.LPush(ctx, queueKey, imageID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, error) {
	result, err := q.client.BRPop(ctx, wait, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrEmpty
		}
		return uuid.Nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	// BRPop returns [key, value]
	if len(result) != 2 {
		return uuid.Nil, fmt.Errorf("unexpected BRPOP reply length %d", len(result))
	}

	id, err := uuid.Parse(result[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed job payload %q: %w", result[1], err)
	}
	return id, nil
}

func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, queueKey).Result()
}

func (q *RedisQueue) SetProgress(ctx context.Context, imageID uuid.UUID, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return q.client.Set(ctx, progressKeyPrefix+imageID.String(), percent, progressTTL).Err()
}

func (q *RedisQueue) GetProgress(ctx context.Context, imageID uuid.UUID) (int, error) {
	val, err := q.client.Get(ctx, progressKeyPrefix+imageID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(val)
}

func (q *RedisQueue) ClearProgress(ctx context.Context, imageID uuid.UUID) error {
	return q.client.Del(ctx, progressKeyPrefix+imageID.String()).Err()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
