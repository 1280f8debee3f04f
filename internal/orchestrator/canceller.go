package orchestrator

import (
	"context"
	"sync"
)

// Canceller is the per-job cooperative cancellation controller. A job's
// flag is set at most once and never cleared; in-flight work observes it
// through the context derived at registration.
type Canceller struct {
	mu        sync.Mutex
	active    map[string]context.CancelFunc
	requested map[string]bool
}

// NewCanceller creates an empty controller.
func NewCanceller() *Canceller {
	return &Canceller{
		active:    make(map[string]context.CancelFunc),
		requested: make(map[string]bool),
	}
}

// Register derives the cancellation context for one job execution. If
// cancellation was requested before the execution started, the returned
// context is already canceled.
func (c *Canceller) Register(parent context.Context, jobID string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	c.active[jobID] = cancel
	requested := c.requested[jobID]
	c.mu.Unlock()

	if requested {
		cancel()
	}
	return ctx
}

// Release drops the job's registration once it reaches a terminal phase.
func (c *Canceller) Release(jobID string) {
	c.mu.Lock()
	cancel, ok := c.active[jobID]
	delete(c.active, jobID)
	delete(c.requested, jobID)
	c.mu.Unlock()

	if ok {
		cancel()
	}
}

// Signal marks the job as cancellation-requested and interrupts its
// execution context if one is active.
func (c *Canceller) Signal(jobID string) {
	c.mu.Lock()
	c.requested[jobID] = true
	cancel, ok := c.active[jobID]
	c.mu.Unlock()

	if ok {
		cancel()
	}
}

// Requested reports whether cancellation was signalled for the job.
func (c *Canceller) Requested(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested[jobID]
}
