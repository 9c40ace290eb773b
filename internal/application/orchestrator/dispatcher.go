package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// taskAttempts bounds dispatch attempts per task within one job run: the
// initial dispatch plus one retry on an alternate agent.
const taskAttempts = 2

// Dispatcher executes one claimed job end to end: it walks the graph's
// parallel batches, fans task requests out to agents, and folds the terminal
// replies back into the job record. Exactly one worker runs a given job at a
// time; the claim in the job store guarantees that.
type Dispatcher struct {
	store      ports.JobStore
	queue      ports.JobQueue
	bus        ports.MessageBus
	registry   ports.AgentRegistry
	correlator *Correlator
	tracker    *Tracker
	metrics    ports.MetricsCollector
	logger     *zap.Logger

	senderID string
}

// NewDispatcher creates a dispatcher wired to the shared correlator and
// tracker.
func NewDispatcher(
	store ports.JobStore,
	queue ports.JobQueue,
	bus ports.MessageBus,
	registry ports.AgentRegistry,
	correlator *Correlator,
	tracker *Tracker,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	senderID string,
) *Dispatcher {
	if senderID == "" {
		senderID = "orchestrator"
	}
	return &Dispatcher{
		store:      store,
		queue:      queue,
		bus:        bus,
		registry:   registry,
		correlator: correlator,
		tracker:    tracker,
		metrics:    metrics,
		logger:     logger,
		senderID:   senderID,
	}
}

// Run dispatches a running job to completion. The job must already be claimed
// (status running). Cancellation is observed at batch boundaries: tasks in
// flight when the job is cancelled finish their attempt, their results are
// recorded, and no further batch starts.
func (d *Dispatcher) Run(ctx context.Context, job *domain.Job) {
	jobCtx := d.tracker.Track(ctx, job.ID)
	defer func() {
		d.tracker.Untrack(job.ID)
		d.correlator.DropJob(job.ID)
	}()

	batches, err := job.Graph.ParallelBatches()
	if err != nil {
		// The graph was validated at submission, so this only fires on a
		// corrupted record.
		d.failJob(ctx, job, fmt.Sprintf("graph decomposition failed: %v", err))
		return
	}

	d.logger.Info("job dispatch started",
		zap.String("job_id", job.ID),
		zap.String("intent", job.Intent),
		zap.Int("tasks", job.Graph.Len()),
		zap.Int("batches", len(batches)),
		zap.Int("retry_count", job.RetryCount))

	for i, batch := range batches {
		if d.cancelRequested(ctx, jobCtx, job.ID) {
			d.cancelJob(ctx, job)
			return
		}

		d.runBatch(jobCtx, job, batch)

		// Cancellation during the batch wins over the batch outcome: the
		// settled task states are recorded under the cancelled record and
		// a failed batch must not send the job back to pending.
		if d.cancelRequested(ctx, jobCtx, job.ID) {
			d.cancelJob(ctx, job)
			return
		}

		if err := d.store.Save(ctx, job); err != nil {
			d.logger.Error("failed to save job after batch",
				zap.String("job_id", job.ID),
				zap.Int("batch", i),
				zap.Error(err))
		}

		if failed := failedTasks(job, batch); len(failed) > 0 {
			d.failJob(ctx, job, fmt.Sprintf("batch %d failed: %s", i, formatTaskErrors(job, failed)))
			return
		}
	}

	if d.cancelRequested(ctx, jobCtx, job.ID) {
		d.cancelJob(ctx, job)
		return
	}

	d.completeJob(ctx, job)
}

// cancelRequested reports whether the job's cancellation has been signalled,
// either through the tracked context or as a cancelled record already
// persisted by the manager.
func (d *Dispatcher) cancelRequested(ctx context.Context, jobCtx context.Context, jobID string) bool {
	select {
	case <-jobCtx.Done():
		return true
	default:
	}
	return d.storedCancelled(ctx, jobID)
}

// storedCancelled reports whether the store already holds a cancelled record
// for the job. Terminal transitions must never overwrite one.
func (d *Dispatcher) storedCancelled(ctx context.Context, jobID string) bool {
	stored, err := d.store.Get(ctx, jobID)
	return err == nil && stored.Status == domain.JobCancelled
}

// runBatch fans the batch's tasks out concurrently and waits for all of them.
func (d *Dispatcher) runBatch(ctx context.Context, job *domain.Job, batch []string) {
	var wg sync.WaitGroup
	for _, taskID := range batch {
		spec, ok := job.Graph.Task(taskID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(spec domain.TaskSpec) {
			defer wg.Done()
			d.runTask(ctx, job, spec)
		}(spec)
	}
	wg.Wait()
}

// runTask dispatches one task, waiting for its terminal reply. On failure or
// timeout it retries once on a different agent; the agent that failed is
// excluded from the second selection.
func (d *Dispatcher) runTask(ctx context.Context, job *domain.Job, spec domain.TaskSpec) {
	state := job.Tasks[spec.ID]
	exclude := make(map[string]bool)
	start := time.Now()

	for attempt := 1; attempt <= taskAttempts; attempt++ {
		agent, err := d.selectAgent(ctx, spec.Action, exclude)
		if err != nil {
			state.Status = domain.TaskFailed
			// A failed earlier attempt already recorded the agent's own
			// error; finding no alternate must not overwrite it.
			if state.Error == "" {
				state.Error = err.Error()
				d.metrics.RecordTaskCompleted(spec.Action, "no_agent", time.Since(start))
			}
			d.logger.Warn("no agent available for task",
				zap.String("job_id", job.ID),
				zap.String("task_id", spec.ID),
				zap.String("action", spec.Action),
				zap.Int("attempt", attempt))
			return
		}

		timeout := spec.EffectiveTimeout()
		deadline := time.Now().Add(timeout)
		req := domain.NewRequest(d.senderID, agent.ID, job.ID, spec.ID, spec.Action, spec.Parameters, deadline)

		state.Status = domain.TaskDispatched
		state.RequestID = req.ID
		state.AgentID = agent.ID
		state.Attempts++

		// Track before publishing so a fast reply can never race the table.
		replyCh := d.correlator.Track(req.ID, job.ID, spec.ID, deadline)

		if err := d.bus.Publish(ctx, domain.AgentTopic(agent.ID), req); err != nil {
			d.correlator.Drop(req.ID)
			state.Error = fmt.Sprintf("dispatch failed: %v", err)
			d.logger.Error("failed to publish task request",
				zap.String("job_id", job.ID),
				zap.String("task_id", spec.ID),
				zap.String("agent_id", agent.ID),
				zap.Error(err))
			exclude[agent.ID] = true
			continue
		}

		d.metrics.RecordTaskDispatched(spec.Action)
		d.logger.Info("task dispatched",
			zap.String("job_id", job.ID),
			zap.String("task_id", spec.ID),
			zap.String("request_id", req.ID),
			zap.String("agent_id", agent.ID),
			zap.Int("attempt", attempt),
			zap.Duration("timeout", timeout))

		timer := time.NewTimer(timeout)
		var reply *domain.Message
		select {
		case reply = <-replyCh:
			timer.Stop()
		case <-timer.C:
			// Stop waiting; a reply arriving later is dropped as unmatched.
			d.correlator.Drop(req.ID)
		}

		if reply == nil {
			state.Error = fmt.Sprintf("%v: agent %s did not reply within %s", domain.ErrTaskTimeout, agent.ID, timeout)
			d.metrics.RecordTaskCompleted(spec.Action, "timeout", time.Since(start))
			d.logger.Warn("task timed out",
				zap.String("job_id", job.ID),
				zap.String("task_id", spec.ID),
				zap.String("agent_id", agent.ID),
				zap.Int("attempt", attempt))
			exclude[agent.ID] = true
			continue
		}

		if reply.Type == domain.MessageDone {
			state.Status = domain.TaskDone
			state.Result = reply.Payload
			state.Error = ""
			d.metrics.RecordTaskCompleted(spec.Action, "done", time.Since(start))
			d.logger.Info("task completed",
				zap.String("job_id", job.ID),
				zap.String("task_id", spec.ID),
				zap.String("agent_id", agent.ID),
				zap.Duration("duration", time.Since(start)))
			return
		}

		state.Error = reply.ErrorText()
		d.metrics.RecordTaskCompleted(spec.Action, "failed", time.Since(start))
		d.logger.Warn("task failed",
			zap.String("job_id", job.ID),
			zap.String("task_id", spec.ID),
			zap.String("agent_id", agent.ID),
			zap.String("error", state.Error),
			zap.Int("attempt", attempt))
		exclude[agent.ID] = true
	}

	state.Status = domain.TaskFailed
}

// selectAgent picks the least-loaded online agent providing the action,
// skipping excluded ids. The registry returns agents sorted by load with
// registration order breaking ties, so the first non-excluded entry wins.
func (d *Dispatcher) selectAgent(ctx context.Context, action string, exclude map[string]bool) (*ports.AgentInfo, error) {
	agents, err := d.registry.ListAgents(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("agent lookup failed: %w", err)
	}
	for i := range agents {
		if !exclude[agents[i].ID] {
			return &agents[i], nil
		}
	}
	return nil, fmt.Errorf("%w: action %s", domain.ErrNoAgentAvailable, action)
}

// completeJob marks the job done and announces it.
func (d *Dispatcher) completeJob(ctx context.Context, job *domain.Job) {
	if d.storedCancelled(ctx, job.ID) {
		d.cancelJob(ctx, job)
		return
	}

	now := time.Now().UTC()
	job.Status = domain.JobDone
	job.CompletedAt = &now
	job.Error = ""

	if err := d.store.Save(ctx, job); err != nil {
		d.logger.Error("failed to save completed job",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	d.publishJobEvent(ctx, job, domain.MessageDone, nil)
	d.metrics.RecordJobCompleted(string(domain.JobDone), d.jobDuration(job))
	d.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Duration("duration", d.jobDuration(job)))
}

// failJob records a failed run. While retry budget remains the job goes back
// to pending and is re-enqueued; otherwise it stays failed as a dead letter.
func (d *Dispatcher) failJob(ctx context.Context, job *domain.Job, reason string) {
	if d.storedCancelled(ctx, job.ID) {
		d.cancelJob(ctx, job)
		return
	}

	now := time.Now().UTC()
	job.Status = domain.JobFailed
	job.CompletedAt = &now
	job.Error = reason

	if job.CanTransition(domain.JobPending) {
		job.ResetForRetry()
		if err := d.store.Save(ctx, job); err != nil {
			d.logger.Error("failed to save job for retry",
				zap.String("job_id", job.ID),
				zap.Error(err))
			return
		}
		if err := d.queue.Enqueue(ctx, job.ID); err != nil {
			d.logger.Error("failed to re-enqueue job",
				zap.String("job_id", job.ID),
				zap.Error(err))
			return
		}
		d.logger.Info("job re-enqueued after failure",
			zap.String("job_id", job.ID),
			zap.String("reason", reason),
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries))
		return
	}

	if err := d.store.Save(ctx, job); err != nil {
		d.logger.Error("failed to save failed job",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	d.publishJobEvent(ctx, job, domain.MessageFailure, &domain.MessageStatus{
		Code:    "job_failed",
		Message: reason,
	})
	d.metrics.RecordJobCompleted(string(domain.JobFailed), d.jobDuration(job))
	d.logger.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("reason", reason),
		zap.Int("retry_count", job.RetryCount))
}

// cancelJob persists the cancelled status after in-flight tasks have settled.
func (d *Dispatcher) cancelJob(ctx context.Context, job *domain.Job) {
	now := time.Now().UTC()
	job.Status = domain.JobCancelled
	job.CompletedAt = &now

	if err := d.store.Save(ctx, job); err != nil {
		d.logger.Error("failed to save cancelled job",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	d.publishJobEvent(ctx, job, domain.MessageFailure, &domain.MessageStatus{
		Code:    "job_cancelled",
		Message: "job cancelled",
	})
	d.metrics.RecordJobCompleted(string(domain.JobCancelled), d.jobDuration(job))
	d.logger.Info("job cancelled",
		zap.String("job_id", job.ID))
}

// publishJobEvent announces a terminal job outcome on the job events topic.
// For a done job the payload carries the merged task results.
func (d *Dispatcher) publishJobEvent(ctx context.Context, job *domain.Job, t domain.MessageType, status *domain.MessageStatus) {
	var payload json.RawMessage
	if t == domain.MessageDone {
		if data, err := json.Marshal(job.MergedResults()); err == nil {
			payload = data
		}
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Sender:    d.senderID,
		Intent:    job.Intent,
		Payload:   payload,
		Status:    status,
		Correlation: domain.Correlation{
			ConversationID: job.ID,
		},
	}

	if err := d.bus.Publish(ctx, domain.JobEventsTopic, msg); err != nil {
		d.logger.Error("failed to publish job event",
			zap.String("job_id", job.ID),
			zap.String("type", string(t)),
			zap.Error(err))
	}
}

func (d *Dispatcher) jobDuration(job *domain.Job) time.Duration {
	if job.StartedAt != nil && job.CompletedAt != nil {
		return job.CompletedAt.Sub(*job.StartedAt)
	}
	return 0
}

// failedTasks returns the ids of batch tasks that did not finish done.
func failedTasks(job *domain.Job, batch []string) []string {
	var failed []string
	for _, id := range batch {
		if state, ok := job.Tasks[id]; ok && state.Status != domain.TaskDone {
			failed = append(failed, id)
		}
	}
	return failed
}

// formatTaskErrors builds a compact error summary for the job record.
func formatTaskErrors(job *domain.Job, ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += "; "
		}
		out += id
		if state, ok := job.Tasks[id]; ok && state.Error != "" {
			out += ": " + state.Error
		}
	}
	return out
}
