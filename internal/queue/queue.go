// Package queue provides a Redis-backed reliable job queue for the
// fulfillment pipeline. Jobs move from a main list to a per-consumer
// processing list with BRPOPLPUSH, so a crashed worker leaves its job parked
// rather than lost (at-least-once delivery). Retries are parked in a delayed
// sorted set and promoted back to the main list when their backoff expires.
//
// With queueing disabled the Enqueue call runs the job inline in the
// caller's goroutine, which keeps local development free of a Redis
// dependency.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"guestflow/internal/config"
	"guestflow/internal/types"
)

const (
	mainKey       = "guestflow:jobs"
	processingKey = "guestflow:jobs:processing"
	delayedKey    = "guestflow:jobs:delayed"

	// maxBackoff caps the exponential retry delay.
	maxBackoff = 5 * time.Minute

	// promoteBatch bounds how many delayed jobs one Dequeue promotes.
	promoteBatch = 100
)

// Handler executes one job. The worker pool's dispatcher implements it; the
// queue also calls it directly in inline mode.
type Handler func(ctx context.Context, payload types.JobPayload) error

// redisCommander is the subset of redis.Cmdable the queue uses. *redis.Client
// satisfies it; tests substitute a mock.
type redisCommander interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPopLPush(ctx context.Context, source, destination string, timeout time.Duration) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Job pairs a decoded payload with the raw list entry. The raw bytes are the
// LREM identity for Ack and Nack, so they must not be re-marshalled.
type Job struct {
	Payload types.JobPayload
	raw     string
}

// Queue is the Redis-backed job queue.
type Queue struct {
	rdb     redisCommander
	cfg     config.QueueConfig
	logger  types.Logger
	clock   types.Clock
	handler Handler
}

// NewClient builds a go-redis client from the queue configuration.
func NewClient(cfg config.QueueConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// New creates a Queue. The handler is invoked synchronously by Enqueue when
// queueing is disabled; it may be nil when the queue is enabled.
func New(rdb redisCommander, cfg config.QueueConfig, handler Handler, logger types.Logger) *Queue {
	return &Queue{
		rdb:     rdb,
		cfg:     cfg,
		logger:  logger,
		clock:   types.RealClock{},
		handler: handler,
	}
}

// Enqueue pushes a job onto the queue, assigning a job ID and enqueue time
// when the caller left them empty. In inline mode the job runs immediately in
// the caller's goroutine and Enqueue returns its error.
func (q *Queue) Enqueue(ctx context.Context, payload types.JobPayload) error {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = q.clock.Now()
	}

	if !q.cfg.Enabled {
		if q.handler == nil {
			return types.NewAppError(types.ErrCodeInternalQueue,
				"queue disabled and no inline handler configured", nil)
		}
		q.logger.Info("queue disabled, running job inline",
			"job_id", payload.JobID,
			"job_type", string(payload.Type),
			"reservation_id", payload.ReservationID,
		)
		return q.handler(ctx, payload)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to marshal job payload", err)
	}

	if err := q.rdb.LPush(ctx, mainKey, body).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to enqueue job", err)
	}

	q.logger.Info("job enqueued",
		"job_id", payload.JobID,
		"job_type", string(payload.Type),
		"reservation_id", payload.ReservationID,
		"attempt", payload.Attempt,
	)
	return nil
}

// Dequeue promotes due delayed jobs, then blocks up to the poll interval for
// the next job. Returns nil without error when no job arrived in time.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		// Promotion failures are logged, not fatal: the main list still
		// serves fresh jobs.
		q.logger.Warn("failed to promote delayed jobs", "error", err)
	}

	raw, err := q.rdb.BRPopLPush(ctx, mainKey, processingKey, q.cfg.PollInterval).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewAppError(types.ErrCodeInternalQueue, "failed to dequeue job", err)
	}

	var payload types.JobPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// A malformed entry would otherwise wedge the processing list.
		q.logger.Error("dropping malformed job payload", "error", err)
		_ = q.rdb.LRem(ctx, processingKey, 1, raw).Err()
		return nil, nil
	}

	return &Job{Payload: payload, raw: raw}, nil
}

// Ack removes a completed job from the processing list.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if err := q.rdb.LRem(ctx, processingKey, 1, job.raw).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to ack job", err)
	}
	return nil
}

// Nack handles a failed job: retryable errors re-queue it with exponential
// backoff until the attempt budget is spent; everything else is dropped with
// an error log. The job always leaves the processing list.
func (q *Queue) Nack(ctx context.Context, job *Job, jobErr error) error {
	if err := q.rdb.LRem(ctx, processingKey, 1, job.raw).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to remove job from processing", err)
	}

	nextAttempt := job.Payload.Attempt + 1
	if !types.IsRetryable(jobErr) {
		q.logger.Error("job failed permanently, not retryable",
			"job_id", job.Payload.JobID,
			"job_type", string(job.Payload.Type),
			"reservation_id", job.Payload.ReservationID,
			"error", jobErr,
		)
		return nil
	}
	if nextAttempt >= q.cfg.MaxAttempts {
		q.logger.Error("job failed permanently, attempts exhausted",
			"job_id", job.Payload.JobID,
			"job_type", string(job.Payload.Type),
			"reservation_id", job.Payload.ReservationID,
			"attempts", nextAttempt,
			"error", jobErr,
		)
		return nil
	}

	retry := job.Payload
	retry.Attempt = nextAttempt
	body, err := json.Marshal(retry)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to marshal retry payload", err)
	}

	delay := q.backoff(nextAttempt)
	due := q.clock.Now().Add(delay)
	if err := q.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: float64(due.UnixMilli()), Member: string(body)}).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to schedule job retry", err)
	}

	q.logger.Warn("job failed, retry scheduled",
		"job_id", job.Payload.JobID,
		"job_type", string(job.Payload.Type),
		"attempt", nextAttempt,
		"max_attempts", q.cfg.MaxAttempts,
		"delay", delay.String(),
		"error", jobErr,
	)
	return nil
}

// Health pings Redis. Inline mode always reports healthy.
func (q *Queue) Health(ctx context.Context) error {
	if !q.cfg.Enabled {
		return nil
	}
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "queue ping failed", err)
	}
	return nil
}

// backoff returns the delay before the given attempt: base * 2^(attempt-1),
// capped.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// promoteDelayed moves jobs whose backoff has expired from the delayed set
// back to the main list.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := q.clock.Now().UnixMilli()
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range members {
		// ZRem first: only the caller that removes the member re-queues it,
		// so two pollers promoting concurrently cannot duplicate a job.
		removed, err := q.rdb.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, mainKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
