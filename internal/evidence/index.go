// Package evidence maintains a lookup index over usage history records polled
// from the management API. The index enriches locally observed requests with
// server-side evidence: token counts, account attribution, and outcome.
package evidence

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// approxWindow is the maximum clock skew tolerated when joining a local
// record against evidence without a shared request ID. The two systems are
// independently clocked, so this is a calibrated heuristic.
const approxWindow = 3 * time.Second

// Record is one usage history item fetched from the management API.
type Record struct {
	RequestID string    `json:"request_id,omitempty"`
	Model     string    `json:"model"`
	AuthIndex string    `json:"auth_index"`
	Source    string    `json:"source,omitempty"`
	Success   bool      `json:"success"`
	Tokens    int64     `json:"tokens"`
	Error     string    `json:"error_message,omitempty"`
	Date      time.Time `json:"date"`
}

// Source fetches the newest batch of history records.
type Source interface {
	RequestHistory(ctx context.Context, limit int) ([]Record, error)
}

// Index is a point-in-time snapshot of the most recently fetched history
// batch, with a by-id map derived from it. Refresh replaces the whole
// snapshot; the list and the map always come from the same fetch.
type Index struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]Record
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{byID: make(map[string]Record)}
}

// Refresh fetches the newest batch from src and replaces the index contents.
// A failed fetch leaves the previous snapshot untouched.
func (ix *Index) Refresh(ctx context.Context, src Source, limit int) error {
	records, err := src.RequestHistory(ctx, limit)
	if err != nil {
		return fmt.Errorf("refresh evidence: %w", err)
	}
	ix.Replace(records)
	return nil
}

// Replace swaps in a new batch, rebuilding the by-id map. Last completed
// replace wins.
func (ix *Index) Replace(records []Record) {
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		if r.RequestID != "" {
			byID[r.RequestID] = r
		}
	}

	ix.mu.Lock()
	ix.records = records
	ix.byID = byID
	ix.mu.Unlock()
}

// Lookup returns the record for an exact request ID, if present.
func (ix *Index) Lookup(requestID string) (Record, bool) {
	if requestID == "" {
		return Record{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.byID[requestID]
	return r, ok
}

// LookupApproximate scans for evidence matching a record that carries no
// request ID: same model, same outcome, timestamps within approxWindow of
// each other. First match wins. Best-effort, not authoritative.
func (ix *Index) LookupApproximate(model string, ts time.Time, success bool) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, r := range ix.records {
		if r.Model != model || r.Success != success {
			continue
		}
		delta := r.Date.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta <= approxWindow {
			return r, true
		}
	}
	return Record{}, false
}

// Records returns a copy of the current snapshot.
func (ix *Index) Records() []Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Record, len(ix.records))
	copy(out, ix.records)
	return out
}

// Len returns the size of the current snapshot.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}
