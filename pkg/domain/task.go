package domain

import (
	"encoding/json"
	"time"
)

// DefaultTaskTimeout is applied when a TaskSpec carries no timeout of its own.
const DefaultTaskTimeout = 60 * time.Second

// TaskSpec is one unit of work inside a task graph. The action is an opaque
// capability tag (navigate, click, send-message, ...) resolved against the
// agent registry at dispatch time; parameters are forwarded to the agent
// untouched.
type TaskSpec struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Timeout    time.Duration   `json:"timeout,omitempty"`
	DependsOn  []string        `json:"depends_on,omitempty"`
}

// EffectiveTimeout returns the spec's timeout, or DefaultTaskTimeout if unset.
func (s TaskSpec) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTaskTimeout
}

// TaskStatus represents the per-task dispatch state within a running job.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskDispatched TaskStatus = "dispatched"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// TaskState tracks the progress of a single task inside a job, including the
// correlation id (RequestID) of the outstanding request message, if any.
type TaskState struct {
	Status    TaskStatus      `json:"status"`
	RequestID string          `json:"request_id,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	Attempts  int             `json:"attempts"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}
