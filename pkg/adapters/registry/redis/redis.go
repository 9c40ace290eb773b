package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Registry implements ports.AgentRegistry over Redis. Each agent record is a
// JSON value whose key carries a heartbeat TTL: an agent that stops
// heartbeating simply expires, which is the registry's offline detection.
type Registry struct {
	client       *redis.Client
	logger       *zap.Logger
	heartbeatTTL time.Duration
}

// NewRegistry creates a Redis-backed agent registry.
func NewRegistry(client *redis.Client, heartbeatTTL time.Duration, logger *zap.Logger) *Registry {
	if heartbeatTTL <= 0 {
		heartbeatTTL = 30 * time.Second
	}
	return &Registry{
		client:       client,
		logger:       logger,
		heartbeatTTL: heartbeatTTL,
	}
}

// Register writes the agent record with the heartbeat TTL.
func (r *Registry) Register(ctx context.Context, info ports.AgentInfo) error {
	now := time.Now()
	info.LastHeartbeat = now
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = now
	}
	if info.Status == "" {
		info.Status = ports.AgentOnline
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal agent record: %w", err)
	}
	if err := r.client.Set(ctx, getAgentKey(info.ID), data, r.heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	r.logger.Debug("agent registered",
		zap.String("agent_id", info.ID),
		zap.Strings("capabilities", info.Capabilities))

	return nil
}

// Heartbeat refreshes the record's TTL and its heartbeat timestamp.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) error {
	key := getAgentKey(agentID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("agent not registered: %s", agentID)
		}
		return fmt.Errorf("failed to read agent record: %w", err)
	}

	var info ports.AgentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("failed to unmarshal agent record: %w", err)
	}
	info.LastHeartbeat = time.Now()

	updated, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal agent record: %w", err)
	}
	if err := r.client.Set(ctx, key, updated, r.heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh agent record: %w", err)
	}
	return nil
}

// Deregister removes an agent record immediately.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	if err := r.client.Del(ctx, getAgentKey(agentID)).Err(); err != nil {
		return fmt.Errorf("failed to deregister agent: %w", err)
	}
	return nil
}

// ListAgents scans agent records, filters by capability, and sorts by load
// ascending with registration time breaking ties.
func (r *Registry) ListAgents(ctx context.Context, capability string) ([]ports.AgentInfo, error) {
	keys, err := r.scanKeys(ctx, agentKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	var agents []ports.AgentInfo
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			// Expired between SCAN and GET: the agent just went offline.
			continue
		}
		var info ports.AgentInfo
		if err := json.Unmarshal(data, &info); err != nil {
			r.logger.Warn("skipping unreadable agent record", zap.String("key", key), zap.Error(err))
			continue
		}
		if info.Status == ports.AgentOffline {
			continue
		}
		if capability != "" && !info.HasCapability(capability) {
			continue
		}
		agents = append(agents, info)
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].CurrentLoad != agents[j].CurrentLoad {
			return agents[i].CurrentLoad < agents[j].CurrentLoad
		}
		if !agents[i].RegisteredAt.Equal(agents[j].RegisteredAt) {
			return agents[i].RegisteredAt.Before(agents[j].RegisteredAt)
		}
		return agents[i].ID < agents[j].ID
	})

	return agents, nil
}

// IsOnline reports whether the agent's record still exists (TTL not expired).
func (r *Registry) IsOnline(ctx context.Context, agentID string) (bool, error) {
	n, err := r.client.Exists(ctx, getAgentKey(agentID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check agent liveness: %w", err)
	}
	return n > 0, nil
}

func (r *Registry) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

const agentKeyPrefix = "agentify:agent:"

func getAgentKey(id string) string {
	return agentKeyPrefix + id
}
