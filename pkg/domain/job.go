package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents a job's position in its lifecycle state machine:
//
//	pending -> running -> {done, failed, cancelled}
//	failed  -> pending  (re-enqueue while retry budget remains)
//
// done and cancelled are terminal; failed is terminal once the budget is
// exhausted (dead letter).
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsValidJobStatus checks whether status is a member of the closed set.
func IsValidJobStatus(status JobStatus) bool {
	switch status {
	case JobPending, JobRunning, JobDone, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is one schedulable unit of orchestration work: a task graph plus
// lifecycle metadata. A job is mutated only by the single worker that owns it
// and by the queue's status transitions.
type Job struct {
	ID          string                `json:"id"`
	Intent      string                `json:"intent"`
	Graph       *TaskGraph            `json:"graph"`
	Status      JobStatus             `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	RetryCount  int                   `json:"retry_count"`
	MaxRetries  int                   `json:"max_retries"`
	Error       string                `json:"error,omitempty"`
	Tasks       map[string]*TaskState `json:"tasks"`
}

// NewJob creates a pending job owning the given graph, with one pending task
// state per graph task.
func NewJob(intent string, graph *TaskGraph, maxRetries int) *Job {
	job := &Job{
		ID:         uuid.New().String(),
		Intent:     intent,
		Graph:      graph,
		Status:     JobPending,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
		Tasks:      make(map[string]*TaskState, graph.Len()),
	}
	for _, spec := range graph.Tasks() {
		job.Tasks[spec.ID] = &TaskState{Status: TaskPending}
	}
	return job
}

// Terminal reports whether the job has reached a terminal status. A failed
// job with retry budget remaining is not terminal: it transitions back to
// pending on re-enqueue.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobDone, JobCancelled:
		return true
	case JobFailed:
		return j.RetryCount >= j.MaxRetries
	default:
		return false
	}
}

// CanTransition reports whether moving from the current status to the target
// is allowed by the state machine.
func (j *Job) CanTransition(to JobStatus) bool {
	switch j.Status {
	case JobPending:
		return to == JobRunning || to == JobCancelled
	case JobRunning:
		return to == JobDone || to == JobFailed || to == JobCancelled
	case JobFailed:
		return to == JobPending && j.RetryCount < j.MaxRetries
	default:
		return false
	}
}

// ResetForRetry moves a failed job back to pending, consuming one unit of the
// retry budget and clearing the per-task state for a clean re-run.
func (j *Job) ResetForRetry() {
	j.RetryCount++
	j.Status = JobPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.Error = ""
	for id := range j.Tasks {
		j.Tasks[id] = &TaskState{Status: TaskPending}
	}
}

// MergedResults returns the payloads of all completed tasks keyed by task id.
// For a done job this is the user-visible result of the whole run.
func (j *Job) MergedResults() map[string]json.RawMessage {
	results := make(map[string]json.RawMessage)
	for id, state := range j.Tasks {
		if state.Status == TaskDone && state.Result != nil {
			results[id] = state.Result
		}
	}
	return results
}
