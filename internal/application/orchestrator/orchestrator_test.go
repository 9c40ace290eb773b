package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	queuememory "github.com/JonasDEMA/agentify-os/pkg/adapters/queue/memory"
	registrymemory "github.com/JonasDEMA/agentify-os/pkg/adapters/registry/memory"
	storagememory "github.com/JonasDEMA/agentify-os/pkg/adapters/storage/memory"
	transportmemory "github.com/JonasDEMA/agentify-os/pkg/adapters/transport/memory"
	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// countingMetrics implements ports.MetricsCollector for tests.
type countingMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{dropped: make(map[string]int)}
}

func (m *countingMetrics) RecordJobSubmitted(status string)                          {}
func (m *countingMetrics) RecordJobCompleted(status string, d time.Duration)         {}
func (m *countingMetrics) RecordTaskDispatched(action string)                        {}
func (m *countingMetrics) RecordTaskCompleted(action, status string, d time.Duration) {}
func (m *countingMetrics) SetQueueDepth(depth int)                                   {}
func (m *countingMetrics) RecordWorkerPoolStatus(idle, busy, stopped int)            {}

func (m *countingMetrics) RecordMessageDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *countingMetrics) droppedCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

// testEnv wires an in-memory deployment for orchestrator tests.
type testEnv struct {
	store      *storagememory.JobStore
	queue      *queuememory.JobQueue
	bus        *transportmemory.Bus
	registry   *registrymemory.Registry
	correlator *Correlator
	tracker    *Tracker
	metrics    *countingMetrics
	manager    *Manager
	dispatcher *Dispatcher
	listener   *Listener
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	store := storagememory.NewJobStore()
	queue := queuememory.NewJobQueue(store, 32)
	bus := transportmemory.NewBus()
	registry := registrymemory.NewRegistry(time.Minute)
	correlator := NewCorrelator()
	tracker := NewTracker()
	metrics := newCountingMetrics()

	env := &testEnv{
		store:      store,
		queue:      queue,
		bus:        bus,
		registry:   registry,
		correlator: correlator,
		tracker:    tracker,
		metrics:    metrics,
	}
	env.manager = NewManager(store, queue, registry, NewValidator(), tracker, metrics, logger)
	env.dispatcher = NewDispatcher(store, queue, bus, registry, correlator, tracker, metrics, logger, "orchestrator")
	env.listener = NewListener(correlator, metrics, logger)

	if err := env.listener.Start(context.Background(), bus); err != nil {
		t.Fatalf("listener.Start: %v", err)
	}
	return env
}

// registerAgent adds an online agent with the given capabilities.
func (e *testEnv) registerAgent(t *testing.T, id string, capabilities ...string) {
	t.Helper()
	if err := e.registry.Register(context.Background(), ports.AgentInfo{
		ID:           id,
		Capabilities: capabilities,
	}); err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
}

// agentBehavior decides how a scripted agent answers one request.
type agentBehavior func(req *domain.Message) (domain.MessageType, json.RawMessage, *domain.MessageStatus)

// scriptAgent subscribes a scripted agent to its request topic. It replies on
// the reply topic according to behave; a nil reply type means stay silent.
func (e *testEnv) scriptAgent(t *testing.T, id string, behave agentBehavior) {
	t.Helper()
	err := e.bus.Subscribe(context.Background(), domain.AgentTopic(id), func(ctx context.Context, req *domain.Message) error {
		kind, payload, status := behave(req)
		if kind == "" {
			return nil
		}
		reply := req.Reply(kind, id, payload)
		reply.Status = status
		return e.bus.Publish(ctx, domain.ReplyTopic, reply)
	})
	if err != nil {
		t.Fatalf("scriptAgent %s: %v", id, err)
	}
}

// alwaysDone is a behavior that succeeds with a fixed payload.
func alwaysDone(payload string) agentBehavior {
	return func(req *domain.Message) (domain.MessageType, json.RawMessage, *domain.MessageStatus) {
		return domain.MessageDone, json.RawMessage(payload), nil
	}
}

// alwaysFail is a behavior that reports a terminal failure.
func alwaysFail(detail string) agentBehavior {
	return func(req *domain.Message) (domain.MessageType, json.RawMessage, *domain.MessageStatus) {
		return domain.MessageFailure, nil, &domain.MessageStatus{Code: "error", Message: detail}
	}
}

// silent is a behavior that never replies, forcing the task timeout.
func silent() agentBehavior {
	return func(req *domain.Message) (domain.MessageType, json.RawMessage, *domain.MessageStatus) {
		return "", nil, nil
	}
}

// submitAndClaim submits a job and pops it off the queue the way a worker
// would, returning the claimed (running) job.
func (e *testEnv) submitAndClaim(t *testing.T, intent string, specs []domain.TaskSpec, maxRetries int) *domain.Job {
	t.Helper()
	ctx := context.Background()

	jobID, err := e.manager.Submit(ctx, intent, specs, maxRetries)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	job, err := e.queue.Dequeue(dctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.ID != jobID {
		t.Fatalf("dequeued %s, want %s", job.ID, jobID)
	}
	return job
}

// storedJob fetches the job's persisted state.
func (e *testEnv) storedJob(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return job
}
