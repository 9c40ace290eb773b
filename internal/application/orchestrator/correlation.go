package orchestrator

import (
	"sync"
	"time"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
)

// Drop reasons recorded when a reply cannot be delivered to a waiter.
const (
	DropMalformed = "malformed"
	DropUnmatched = "unmatched"
	DropDuplicate = "duplicate"
	DropLate      = "late"
)

// pendingRequest is one outstanding task request awaiting its terminal reply.
type pendingRequest struct {
	jobID    string
	taskID   string
	replyCh  chan *domain.Message
	deadline time.Time
}

// Correlator is the table of outstanding requests keyed by request message id.
// The dispatcher tracks a request before publishing it; the listener resolves
// the terminal reply by its inReplyTo. A resolved or dropped entry is removed,
// so a second reply to the same request reports as a duplicate.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewCorrelator creates an empty correlation table.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]*pendingRequest)}
}

// Track registers an outstanding request and returns the channel its terminal
// reply will be delivered on. The channel is buffered so the listener never
// blocks on a waiter that already gave up.
func (c *Correlator) Track(requestID, jobID, taskID string, deadline time.Time) <-chan *domain.Message {
	ch := make(chan *domain.Message, 1)
	c.mu.Lock()
	c.pending[requestID] = &pendingRequest{
		jobID:    jobID,
		taskID:   taskID,
		replyCh:  ch,
		deadline: deadline,
	}
	c.mu.Unlock()
	return ch
}

// Resolve delivers a terminal reply to the waiter identified by inReplyTo.
// It returns the drop reason when no delivery happens: unmatched when the
// request id was never tracked or was already resolved, late when the reply
// arrived after the request's deadline passed and the waiter moved on.
func (c *Correlator) Resolve(msg *domain.Message) (resolved bool, reason string) {
	c.mu.Lock()
	req, ok := c.pending[msg.Correlation.InReplyTo]
	if ok {
		delete(c.pending, msg.Correlation.InReplyTo)
	}
	c.mu.Unlock()

	if !ok {
		return false, DropUnmatched
	}
	if !req.deadline.IsZero() && time.Now().After(req.deadline) {
		return false, DropLate
	}
	req.replyCh <- msg
	return true, ""
}

// Drop removes a single outstanding request without delivering anything. The
// dispatcher calls this when a task times out; any reply arriving afterwards
// resolves as unmatched.
func (c *Correlator) Drop(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// DropJob removes every outstanding request belonging to a job, used when the
// job is cancelled or abandoned mid-batch.
func (c *Correlator) DropJob(jobID string) {
	c.mu.Lock()
	for id, req := range c.pending {
		if req.jobID == jobID {
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()
}

// PendingCount returns the number of outstanding requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
