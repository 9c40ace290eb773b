package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/internal/application/orchestrator"
	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Pool manages a pool of dispatch worker goroutines. Each worker blocks on
// the job queue and runs one job at a time through the dispatcher; the
// exclusive claim happens inside Dequeue, so two workers never own the same
// job.
type Pool struct {
	size       int
	queue      ports.JobQueue
	dispatcher *orchestrator.Dispatcher
	metrics    ports.MetricsCollector
	logger     *zap.Logger
	health     *HealthMonitor

	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single dispatch goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool
func NewPool(
	size int,
	queue ports.JobQueue,
	dispatcher *orchestrator.Dispatcher,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:       size,
		queue:      queue,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		workers:    make([]*worker, size),
		ctx:        ctx,
		cancel:     cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop: dequeue a claimed job, dispatch it, repeat.
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Info("worker started", zap.String("worker_id", w.id))

	for {
		job, err := w.pool.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrQueueClosed) {
				break
			}
			w.pool.logger.Error("dequeue failed",
				zap.String("worker_id", w.id),
				zap.Error(err))
			// Back off briefly so a broken queue does not spin the loop.
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		w.setStatus(WorkerStatusBusy)
		w.pool.logger.Info("worker picked up job",
			zap.String("worker_id", w.id),
			zap.String("job_id", job.ID))

		w.pool.dispatcher.Run(ctx, job)

		w.setStatus(WorkerStatusIdle)
	}

	w.setStatus(WorkerStatusStopped)
	w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	if s == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
	w.mu.Unlock()
}
