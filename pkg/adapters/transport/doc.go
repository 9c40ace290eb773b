// Package transport provides message bus implementations carrying the agent
// protocol envelope.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - rabbitmq: one durable queue per topic
//   - memory: in-process fan-out for testing and embedded agents
//
// All transports deliver at-least-once; the orchestrator's correlation table
// makes duplicate and late deliveries harmless.
package transport
