// Package registry groups the agent registry adapters. The memory
// implementation serves tests and single-process deployments; the redis
// implementation shares agent records between orchestrator replicas and uses
// key TTLs as heartbeat-based liveness.
package registry
