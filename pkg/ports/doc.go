// Package ports defines the interfaces between the orchestration core and
// its adapters: job storage, the job queue, the message transport, the agent
// registry, and metrics.
//
// Every dependency is injected at construction time; there are no ambient
// singletons. The in-memory adapters double as test doubles.
package ports
