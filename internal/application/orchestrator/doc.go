// Package orchestrator implements the core job orchestration logic.
//
// The manager owns the job lifecycle (submit, query, cancel, retry) and the
// dispatcher executes one job at a time for a worker: it decomposes the task
// graph into parallel batches, fans requests out to capability-matched agents
// over the message bus, and collects terminal replies through the correlator.
//
// The listener is the single bus subscriber for agent replies. It validates
// envelopes and resolves them against outstanding requests; unmatched,
// duplicate, and late replies are dropped and counted.
package orchestrator
