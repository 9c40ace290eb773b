package orchestrator

import (
	"context"
	"sync"
	"time"
)

// execution holds the live state of one job being dispatched, most importantly
// the cancel function used to interrupt it between batches.
type execution struct {
	jobID      string
	startedAt  time.Time
	cancelFunc context.CancelFunc
}

// Tracker indexes active job executions by job id. The dispatcher registers a
// job when it starts running it; the manager uses the tracker to cancel a
// running job and to interrupt everything on shutdown.
type Tracker struct {
	executions sync.Map // map[string]*execution
}

// NewTracker creates an empty execution tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track registers a running job and returns the context its dispatch loop
// must observe.
func (t *Tracker) Track(ctx context.Context, jobID string) context.Context {
	execCtx, cancel := context.WithCancel(ctx)
	t.executions.Store(jobID, &execution{
		jobID:      jobID,
		startedAt:  time.Now(),
		cancelFunc: cancel,
	})
	return execCtx
}

// Untrack removes a finished job and releases its context.
func (t *Tracker) Untrack(jobID string) {
	if val, ok := t.executions.LoadAndDelete(jobID); ok {
		val.(*execution).cancelFunc()
	}
}

// Cancel interrupts a running job. Returns false if the job is not currently
// being dispatched.
func (t *Tracker) Cancel(jobID string) bool {
	val, ok := t.executions.Load(jobID)
	if !ok {
		return false
	}
	val.(*execution).cancelFunc()
	return true
}

// CancelAll interrupts every active execution, used on shutdown.
func (t *Tracker) CancelAll() {
	t.executions.Range(func(_, value interface{}) bool {
		value.(*execution).cancelFunc()
		return true
	})
}

// Active returns the number of jobs currently being dispatched.
func (t *Tracker) Active() int {
	n := 0
	t.executions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
