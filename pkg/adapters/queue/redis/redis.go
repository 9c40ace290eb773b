package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// JobQueue implements ports.JobQueue over a Redis list (LPUSH/BRPOP). The
// list only carries job ids; the exclusive claim is the job store's
// conditional status transition, so a popped id that loses the claim race is
// dropped rather than processed twice.
type JobQueue struct {
	client *redis.Client
	store  ports.JobStore
	logger *zap.Logger
	key    string
	wait   time.Duration
}

// Config holds queue parameters.
type Config struct {
	// Key is the Redis list key. Defaults to "agentify:jobs".
	Key string
	// BlockWait bounds each BRPOP so Dequeue can observe context
	// cancellation. Defaults to 5s.
	BlockWait time.Duration
}

// NewJobQueue creates a Redis-backed job queue.
func NewJobQueue(client *redis.Client, store ports.JobStore, cfg Config, logger *zap.Logger) *JobQueue {
	key := cfg.Key
	if key == "" {
		key = "agentify:jobs"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &JobQueue{
		client: client,
		store:  store,
		logger: logger,
		key:    key,
		wait:   wait,
	}
}

// Enqueue pushes a job id onto the list.
func (q *JobQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks on BRPOP until a pending job is claimed or the context is
// cancelled.
func (q *JobQueue) Dequeue(ctx context.Context) (*domain.Job, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		values, err := q.client.BRPop(ctx, q.wait, q.key).Result()
		if err != nil {
			if err == redis.Nil {
				// Timed out with an empty list; poll again.
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, domain.ErrQueueClosed
			}
			return nil, fmt.Errorf("failed to pop job: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		jobID := values[1]

		job, err := q.store.Claim(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobConflict) || errors.Is(err, domain.ErrJobNotFound) {
				q.logger.Debug("skipping unclaimable job",
					zap.String("job_id", jobID),
					zap.Error(err))
				continue
			}
			// Claim failed for an infrastructure reason: put the id back so
			// another consumer can retry it.
			if pushErr := q.client.RPush(ctx, q.key, jobID).Err(); pushErr != nil {
				q.logger.Error("failed to requeue job after claim error",
					zap.String("job_id", jobID),
					zap.Error(pushErr))
			}
			return nil, err
		}
		return job, nil
	}
}

// Depth returns the current list length.
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *JobQueue) Close() error {
	return nil
}
