// Package queue provides job queue implementations.
//
// Implementations:
//   - redis: Redis list (LPUSH/BRPOP) carrying job ids
//   - memory: buffered channel for testing
//
// Both delegate the exclusive pending->running claim to the job store's
// conditional update, so a dequeued id is processed by at most one worker.
package queue
