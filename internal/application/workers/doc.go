// Package workers implements the dispatch worker pool.
//
// The pool manages a fixed number of goroutines that:
//   - Block on the job queue until a pending job is exclusively claimed
//   - Run the claimed job through the orchestrator dispatcher
//   - Repeat until shutdown
//
// The health monitor tracks worker status, reports queue depth, and records
// pool metrics.
package workers
