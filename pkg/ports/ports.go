package ports

import (
	"context"
	"time"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
)

// JobFilter narrows and paginates job listings.
type JobFilter struct {
	Status domain.JobStatus // empty matches all statuses
	Limit  int
	Offset int
}

// JobStore persists jobs. Implementations must make Claim a conditional
// update so that two concurrent consumers can never both claim the same job.
type JobStore interface {
	// Save persists the job, overwriting any previous version.
	Save(ctx context.Context, job *domain.Job) error

	// Get returns the job or domain.ErrJobNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// List returns jobs matching the filter, ordered by creation time,
	// together with the total match count before pagination.
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, int, error)

	// Claim atomically transitions a pending job to running, recording
	// StartedAt. Returns domain.ErrJobConflict if the job is not pending.
	Claim(ctx context.Context, id string) (*domain.Job, error)

	// Delete removes a job record.
	Delete(ctx context.Context, id string) error
}

// JobQueue hands pending job ids to dispatch workers. Dequeue blocks until a
// job is claimed or the context is cancelled; the claim itself goes through
// JobStore.Claim, so a popped id that loses the claim race is skipped, not
// returned twice.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (*domain.Job, error)
	Close() error
}

// MessageHandler consumes one protocol message from a subscription.
type MessageHandler func(ctx context.Context, msg *domain.Message) error

// MessageBus is the transport carrying protocol envelopes between the
// orchestrator and agents. Topic semantics are at-least-once; correlation
// handling upstream makes duplicates harmless.
type MessageBus interface {
	Publish(ctx context.Context, topic string, msg *domain.Message) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// AgentStatus is the registry's view of an agent.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// AgentInfo is the registry record for one capability-providing agent.
// Read-only to the orchestration core.
type AgentInfo struct {
	ID            string      `json:"id"`
	Endpoint      string      `json:"endpoint"`
	Capabilities  []string    `json:"capabilities"`
	Status        AgentStatus `json:"status"`
	CurrentLoad   int         `json:"current_load"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	RegisteredAt  time.Time   `json:"registered_at"`
}

// HasCapability reports whether the agent advertises the given action tag.
func (a AgentInfo) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// AgentRegistry is the external capability -> endpoint lookup consumed by the
// orchestrator. Agent lifecycle (registration, heartbeat expiry) is owned by
// the registry, not by the core.
type AgentRegistry interface {
	// ListAgents returns online agents providing the capability, sorted by
	// current load ascending with registration order breaking ties.
	ListAgents(ctx context.Context, capability string) ([]AgentInfo, error)

	// IsOnline reports liveness for a single agent.
	IsOnline(ctx context.Context, agentID string) (bool, error)
}

// MetricsCollector records orchestration metrics. A Prometheus-backed
// implementation lives in pkg/adapters/metrics.
type MetricsCollector interface {
	RecordJobSubmitted(status string)
	RecordJobCompleted(status string, duration time.Duration)
	RecordTaskDispatched(action string)
	RecordTaskCompleted(action, status string, duration time.Duration)
	RecordMessageDropped(reason string)
	SetQueueDepth(depth int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
