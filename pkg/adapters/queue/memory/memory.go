package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// JobQueue implements ports.JobQueue over a buffered channel, with the
// exclusive claim delegated to the job store's conditional update.
// Used by tests and single-process deployments.
type JobQueue struct {
	store  ports.JobStore
	ch     chan string
	mu     sync.Mutex
	closed bool
}

// NewJobQueue creates an in-memory queue with the given buffer size.
func NewJobQueue(store ports.JobStore, size int) *JobQueue {
	if size <= 0 {
		size = 64
	}
	return &JobQueue{
		store: store,
		ch:    make(chan string, size),
	}
}

// Enqueue pushes a job id onto the queue.
func (q *JobQueue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return domain.ErrQueueClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- jobID:
		return nil
	}
}

// Dequeue blocks until a pending job is claimed or the context is cancelled.
// Ids whose claim is lost to another consumer (or whose job was cancelled
// while queued) are skipped.
func (q *JobQueue) Dequeue(ctx context.Context) (*domain.Job, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case jobID, ok := <-q.ch:
			if !ok {
				return nil, domain.ErrQueueClosed
			}
			job, err := q.store.Claim(ctx, jobID)
			if err != nil {
				if errors.Is(err, domain.ErrJobConflict) || errors.Is(err, domain.ErrJobNotFound) {
					continue
				}
				return nil, err
			}
			return job, nil
		}
	}
}

// Depth returns the number of ids waiting in the queue.
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Close shuts the queue; blocked Dequeue calls return domain.ErrQueueClosed.
func (q *JobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}
