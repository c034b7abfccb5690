package focus

import "sync"

// Coordinator owns the process-wide focus state: at most one active filter,
// set by the screen that produced it and consumed by another. All writes go
// through the coordinator so neither screen owns the value.
type Coordinator struct {
	mu      sync.RWMutex
	current *Filter
}

// NewCoordinator creates a Coordinator with no active focus.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Set replaces the active focus.
func (c *Coordinator) Set(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &f
}

// Current returns the active focus, if any.
func (c *Coordinator) Current() (Filter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Filter{}, false
	}
	return *c.current, true
}

// Clear removes the active focus.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
