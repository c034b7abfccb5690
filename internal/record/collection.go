package record

import "sync"

// defaultBound caps collections when the caller passes no explicit bound.
const defaultBound = 1000

// Collection is a bounded, insertion-ordered set of request records. When
// the bound is exceeded the oldest record is evicted.
type Collection struct {
	mu    sync.RWMutex
	bound int
	items []Request
}

// NewCollection creates a Collection holding at most bound records.
func NewCollection(bound int) *Collection {
	if bound <= 0 {
		bound = defaultBound
	}
	return &Collection{bound: bound}
}

// Append adds a record, evicting oldest-first past the bound.
func (c *Collection) Append(r Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, r)
	if len(c.items) > c.bound {
		c.items = c.items[len(c.items)-c.bound:]
	}
}

// Items returns a copy of the records in insertion order.
func (c *Collection) Items() []Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Request, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the current record count.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats derives aggregate statistics over the full collection. Never cached:
// the figures always reflect current content.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		TotalRequests: len(c.items),
		ByProvider:    make(map[string]int),
	}
	if len(c.items) == 0 {
		return s
	}

	var successes int
	var durationSum float64
	for _, r := range c.items {
		if r.IsSuccess() {
			successes++
		}
		s.TotalTokens += r.Tokens
		durationSum += r.DurationMs
		if r.Provider != "" {
			s.ByProvider[r.Provider]++
		}
	}
	s.SuccessRate = float64(successes) / float64(len(c.items)) * 100
	s.AverageDurationMs = durationSum / float64(len(c.items))
	return s
}

// LogCollection is a bounded, insertion-ordered set of log entries.
type LogCollection struct {
	mu    sync.RWMutex
	bound int
	items []LogEntry
}

// NewLogCollection creates a LogCollection holding at most bound entries.
func NewLogCollection(bound int) *LogCollection {
	if bound <= 0 {
		bound = defaultBound
	}
	return &LogCollection{bound: bound}
}

// Append adds an entry, evicting oldest-first past the bound.
func (c *LogCollection) Append(e LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, e)
	if len(c.items) > c.bound {
		c.items = c.items[len(c.items)-c.bound:]
	}
}

// Items returns a copy of the entries in insertion order.
func (c *LogCollection) Items() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogEntry, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the current entry count.
func (c *LogCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
