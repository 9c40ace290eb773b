package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Registry implements ports.AgentRegistry with an in-memory agent table.
// It also carries the agent-facing side (Register, Heartbeat, load updates)
// for embedded agents and tests.
type Registry struct {
	heartbeatTTL time.Duration

	mu     sync.RWMutex
	agents map[string]*record
	seq    int
}

type record struct {
	info ports.AgentInfo
	seq  int // registration order, tie-break after load
}

// NewRegistry creates a registry. Agents whose last heartbeat is older than
// heartbeatTTL are considered offline.
func NewRegistry(heartbeatTTL time.Duration) *Registry {
	if heartbeatTTL <= 0 {
		heartbeatTTL = 30 * time.Second
	}
	return &Registry{
		heartbeatTTL: heartbeatTTL,
		agents:       make(map[string]*record),
	}
}

// Register adds or replaces an agent record and counts as a heartbeat.
func (r *Registry) Register(ctx context.Context, info ports.AgentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	info.LastHeartbeat = now
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = now
	}
	if info.Status == "" {
		info.Status = ports.AgentOnline
	}

	if existing, ok := r.agents[info.ID]; ok {
		existing.info = info
		return nil
	}
	r.seq++
	r.agents[info.ID] = &record{info: info, seq: r.seq}
	return nil
}

// Heartbeat refreshes an agent's liveness.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		rec.info.LastHeartbeat = time.Now()
	}
	return nil
}

// SetLoad records an agent's current load, as reported by the agent.
func (r *Registry) SetLoad(ctx context.Context, agentID string, load int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		rec.info.CurrentLoad = load
	}
	return nil
}

// Deregister removes an agent.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
	return nil
}

// ListAgents returns online agents providing the capability, sorted by load
// ascending with registration order breaking ties.
func (r *Registry) ListAgents(ctx context.Context, capability string) ([]ports.AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var matched []*record
	for _, rec := range r.agents {
		if !r.alive(rec, now) {
			continue
		}
		if capability != "" && !rec.info.HasCapability(capability) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].info.CurrentLoad != matched[j].info.CurrentLoad {
			return matched[i].info.CurrentLoad < matched[j].info.CurrentLoad
		}
		return matched[i].seq < matched[j].seq
	})

	out := make([]ports.AgentInfo, len(matched))
	for i, rec := range matched {
		out[i] = rec.info
	}
	return out, nil
}

// IsOnline reports whether the agent exists and its heartbeat is fresh.
func (r *Registry) IsOnline(ctx context.Context, agentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return false, nil
	}
	return r.alive(rec, time.Now()), nil
}

func (r *Registry) alive(rec *record, now time.Time) bool {
	if rec.info.Status == ports.AgentOffline {
		return false
	}
	return now.Sub(rec.info.LastHeartbeat) <= r.heartbeatTTL
}
