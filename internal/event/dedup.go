package event

import "sync"

// Deduplicator rejects re-delivered events and tracks the furthest-read
// sequence number. Duplicates are expected during replay-after-reconnect, so
// rejection is silent.
//
// The sequence cursor is deliberately independent of content dedup: a
// duplicate event still advances the cursor when it carries a higher seq,
// because the cursor must reflect the furthest position read from the stream,
// not the furthest novel content.
type Deduplicator struct {
	mu          sync.RWMutex
	seen        map[string]struct{}
	lastSeenSeq int64
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Observe records an event and reports whether it should be accepted.
// The seq cursor is updated unconditionally before the duplicate check.
func (d *Deduplicator) Observe(e Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.Seq > d.lastSeenSeq {
		d.lastSeenSeq = e.Seq
	}

	key := DedupeKey(e)
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// LastSeenSeq returns the highest sequence number observed so far. It never
// decreases.
func (d *Deduplicator) LastSeenSeq() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeenSeq
}

// Len returns the number of distinct event keys observed.
func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}
