package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// JobStore implements ports.JobStore using Redis with JSON serialization and
// a retention TTL on terminal jobs.
type JobStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewJobStore creates a new Redis job store. ttl is the retention period
// applied to every job record.
func NewJobStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *JobStore {
	return &JobStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists the job as JSON under its key.
func (s *JobStore) Save(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.client.Set(ctx, getJobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Debug("job saved",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)))

	return nil
}

// Get retrieves a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	data, err := s.client.Get(ctx, getJobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// List scans all job keys, filters by status, orders by creation time, and
// paginates.
func (s *JobStore) List(ctx context.Context, filter ports.JobFilter) ([]*domain.Job, int, error) {
	keys, err := s.scanKeys(ctx, jobKeyPrefix+"*")
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*domain.Job, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Key expired between SCAN and GET.
			continue
		}
		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			s.logger.Warn("skipping unreadable job record", zap.String("key", key), zap.Error(err))
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, &job)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// Claim atomically transitions a pending job to running using an optimistic
// WATCH/MULTI transaction. Exactly one of several concurrent claimants wins;
// the rest get domain.ErrJobConflict.
func (s *JobStore) Claim(ctx context.Context, id string) (*domain.Job, error) {
	key := getJobKey(id)
	var claimed *domain.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return domain.ErrJobNotFound
			}
			return err
		}

		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		if job.Status != domain.JobPending {
			return domain.ErrJobConflict
		}

		now := time.Now().UTC()
		job.Status = domain.JobRunning
		job.StartedAt = &now

		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		claimed = &job
		return nil
	}

	// redis.TxFailedErr means the watched key changed under us: another
	// consumer claimed first.
	if err := s.client.Watch(ctx, txn, key); err != nil {
		if err == redis.TxFailedErr {
			return nil, domain.ErrJobConflict
		}
		return nil, err
	}

	s.logger.Debug("job claimed", zap.String("job_id", id))
	return claimed, nil
}

// Delete removes a job record.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, getJobKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// scanKeys collects all keys matching the pattern with cursor-based SCAN.
func (s *JobStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

const jobKeyPrefix = "agentify:job:"

func getJobKey(id string) string {
	return jobKeyPrefix + id
}
