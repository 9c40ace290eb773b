// Package domain holds the core orchestration model: task graphs, jobs, and
// the agent communication protocol envelope.
//
// Everything here is pure data and algorithms with no I/O:
//   - TaskGraph: DAG of task specs with cycle detection, topological
//     ordering, and parallel-batch decomposition
//   - Job: one schedulable unit of work with its lifecycle state machine
//   - Message: the versioned wire envelope exchanged with agents
package domain
