// Package storage provides job store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization, retention TTL, and an optimistic
//     WATCH/MULTI transaction for the exclusive dequeue claim
//   - memory: In-memory for testing
package storage
