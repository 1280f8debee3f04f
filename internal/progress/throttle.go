package progress

import (
	"sync"
	"time"
)

// Emitter coalesces bursts of progress samples to at most one emission
// per interval. Final samples (phase-complete) always pass. One Emitter
// belongs to one in-flight phase invocation; it is never shared across
// jobs.
type Emitter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewEmitter creates an emitter with the given minimum interval. A
// non-positive interval disables throttling.
func NewEmitter(interval time.Duration) *Emitter {
	return &Emitter{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether a sample should be emitted now. The first sample
// and any final sample are always allowed.
func (e *Emitter) Allow(final bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if final || e.interval <= 0 || e.last.IsZero() || now.Sub(e.last) >= e.interval {
		e.last = now
		return true
	}
	return false
}
