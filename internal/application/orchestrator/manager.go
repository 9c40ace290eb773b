package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Manager coordinates the job lifecycle
type Manager struct {
	store     ports.JobStore
	queue     ports.JobQueue
	registry  ports.AgentRegistry
	validator *Validator
	tracker   *Tracker
	metrics   ports.MetricsCollector
	logger    *zap.Logger
}

// NewManager creates a new orchestrator manager
func NewManager(
	store ports.JobStore,
	queue ports.JobQueue,
	registry ports.AgentRegistry,
	validator *Validator,
	tracker *Tracker,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:     store,
		queue:     queue,
		registry:  registry,
		validator: validator,
		tracker:   tracker,
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit validates a submission, persists the pending job, and enqueues it.
// Returns the new job id.
func (m *Manager) Submit(ctx context.Context, intent string, specs []domain.TaskSpec, maxRetries int) (string, error) {
	graph, err := m.validator.ValidateSubmission(intent, specs, maxRetries)
	if err != nil {
		m.logger.Warn("job submission rejected",
			zap.String("intent", intent),
			zap.Error(err))
		m.metrics.RecordJobSubmitted("rejected")
		return "", fmt.Errorf("validation failed: %w", err)
	}

	job := domain.NewJob(intent, graph, maxRetries)

	if err := m.store.Save(ctx, job); err != nil {
		m.logger.Error("failed to save job",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	if err := m.queue.Enqueue(ctx, job.ID); err != nil {
		m.logger.Error("failed to enqueue job",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.metrics.RecordJobSubmitted(string(domain.JobPending))
	m.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("intent", intent),
		zap.Int("tasks", graph.Len()),
		zap.Int("max_retries", maxRetries))

	return job.ID, nil
}

// Get returns the current job record.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.store.Get(ctx, jobID)
}

// List returns jobs matching the filter and the total match count.
func (m *Manager) List(ctx context.Context, filter ports.JobFilter) ([]*domain.Job, int, error) {
	return m.store.List(ctx, filter)
}

// Result returns the merged task results of a completed job. Only done jobs
// carry a result.
func (m *Manager) Result(ctx context.Context, jobID string) (map[string]json.RawMessage, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobDone {
		return nil, fmt.Errorf("job %s is %s, not done", jobID, job.Status)
	}
	return job.MergedResults(), nil
}

// Cancel stops a job. The cancelled status is persisted immediately; for a
// running job the dispatch loop is additionally interrupted and folds the
// settled task states back into the cancelled record. Terminal jobs cannot
// be cancelled.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Terminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, jobID, job.Status)
	}

	wasRunning := job.Status == domain.JobRunning

	now := time.Now().UTC()
	job.Status = domain.JobCancelled
	job.CompletedAt = &now
	if err := m.store.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save cancelled job: %w", err)
	}

	if wasRunning && m.tracker.Cancel(jobID) {
		// The dispatch loop lets in-flight tasks settle, records their
		// outcomes under the cancelled record, and emits the final event.
		m.logger.Info("cancellation requested for running job",
			zap.String("job_id", jobID))
		return nil
	}

	m.metrics.RecordJobCompleted(string(domain.JobCancelled), 0)
	m.logger.Info("job cancelled",
		zap.String("job_id", jobID))
	return nil
}

// Retry re-enqueues a failed job, consuming one unit of its retry budget.
// A job whose budget is exhausted is a dead letter: Retry reports
// ErrRetriesExhausted and never re-enqueues it.
func (m *Manager) Retry(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != domain.JobFailed {
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobNotFailed, jobID, job.Status)
	}
	if job.RetryCount >= job.MaxRetries {
		return fmt.Errorf("%w: job %s used %d of %d retries", domain.ErrRetriesExhausted, jobID, job.RetryCount, job.MaxRetries)
	}

	job.ResetForRetry()

	if err := m.store.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job for retry: %w", err)
	}
	if err := m.queue.Enqueue(ctx, jobID); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.metrics.RecordJobSubmitted("retry")
	m.logger.Info("job manually retried",
		zap.String("job_id", jobID))
	return nil
}

// ListAgents returns the registry's view of online agents, optionally
// filtered by capability.
func (m *Manager) ListAgents(ctx context.Context, capability string) ([]ports.AgentInfo, error) {
	return m.registry.ListAgents(ctx, capability)
}

// Shutdown interrupts all active executions and closes the queue.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager",
		zap.Int("active_jobs", m.tracker.Active()))

	m.tracker.CancelAll()

	if err := m.queue.Close(); err != nil && !errors.Is(err, domain.ErrQueueClosed) {
		return fmt.Errorf("failed to close queue: %w", err)
	}

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}
