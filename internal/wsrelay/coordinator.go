package wsrelay

import (
	"sync"
	"time"
)

// InitiateReply is what an agent's INITIATE_OK/INITIATE_ERROR resolves
// to for the access-client session waiting on a given stream id.
type InitiateReply struct {
	OK      bool
	Message string
}

// Coordinator is the per-identifier rendezvous an access-client session
// uses to await its agent's reply to an INITIATE_CONNECTION request.
//
// The source this relay is modeled on routes every reply through one
// process-wide FIFO queue (asyncio.Queue); under concurrent opens that
// lets stream X's reply reach the session waiting on stream Y. This type
// is the fix: replies are routed by connection id through a
// mutex-protected map of single-use channels, so concurrently opening
// streams can never observe one another's replies.
type Coordinator struct {
	mu      sync.Mutex
	waiters map[string]chan InitiateReply
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{waiters: make(map[string]chan InitiateReply)}
}

// Register installs a capacity-1 waiter channel for id. Call this before
// sending INITIATE_CONNECTION to the agent, so a reply that arrives
// immediately cannot be missed.
func (c *Coordinator) Register(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[id] = make(chan InitiateReply, 1)
}

// Wait blocks until Post delivers a reply for id or timeout elapses.
// The waiter is removed from the map regardless of outcome, so a late
// Post after a timeout is a no-op.
func (c *Coordinator) Wait(id string, timeout time.Duration) (InitiateReply, bool) {
	c.mu.Lock()
	ch, ok := c.waiters[id]
	c.mu.Unlock()
	if !ok {
		return InitiateReply{}, false
	}

	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	select {
	case reply := <-ch:
		return reply, true
	case <-time.After(timeout):
		return InitiateReply{}, false
	}
}

// Post delivers reply to the waiter registered for id, if any. A post
// with no waiter is a no-op: the session already timed out or
// terminated.
func (c *Coordinator) Post(id string, reply InitiateReply) {
	c.mu.Lock()
	ch, ok := c.waiters[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply:
	default:
		// Waiter already has a buffered reply (shouldn't happen for a
		// single-producer id) or has already been removed; drop.
	}
}
