package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the orchestration core. Task-level failures are data
// (status fields, failure messages) and never cross component boundaries as
// errors; these sentinels cover submission-time rejection and control
// operations.
var (
	// ErrInvalidDependency indicates a task references a dependency that is
	// not part of the same graph. Rejected at submission, never queued.
	ErrInvalidDependency = errors.New("invalid dependency")

	// ErrCycleDetected indicates the task graph contains a dependency cycle.
	// Rejected at submission, never queued.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrDuplicateTask indicates two tasks in the same graph share an id.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrNoAgentAvailable indicates no registered agent provides the
	// capability a task requires. Treated as an immediate task failure.
	ErrNoAgentAvailable = errors.New("no agent available")

	// ErrTaskTimeout indicates a dispatched task produced no terminal reply
	// within its deadline. Converted into a synthetic failure.
	ErrTaskTimeout = errors.New("task timeout")

	// ErrRetriesExhausted indicates a job has consumed its full retry budget
	// and is terminally failed.
	ErrRetriesExhausted = errors.New("retries exhausted")

	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal indicates an operation is not valid on a job that has
	// already reached a terminal status.
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrJobNotFailed indicates retry was requested for a job that is not in
	// the failed status.
	ErrJobNotFailed = errors.New("job is not failed")

	// ErrJobConflict indicates a conditional status transition lost to a
	// concurrent consumer (e.g. two workers racing to claim the same job).
	ErrJobConflict = errors.New("job status conflict")

	ErrQueueClosed = errors.New("queue closed")
)

// CycleError reports a dependency cycle together with the participating task
// ids, in walk order, for diagnostics.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap makes errors.Is(err, ErrCycleDetected) work on a CycleError.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
