// Package event defines the realtime event model pushed by the management
// API's SSE stream, plus the deduplication logic applied before events are
// merged into the request collection.
package event

import (
	"fmt"
	"time"
)

// Event types emitted by the management API stream.
const (
	TypeRequest       = "request"
	TypeError         = "error"
	TypeQuotaExceeded = "quota_exceeded"
	TypeConnected     = "connected"
)

// Event is a single realtime notification from the management API.
// Seq, when non-zero, is a server-assigned monotonically increasing sequence
// number used as the resume cursor after a disconnect.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	AuthFile  string    `json:"auth_file,omitempty"`
	Source    string    `json:"source,omitempty"`
	Success   bool      `json:"success"`
	Tokens    int64     `json:"tokens,omitempty"`
}

// DedupeKey derives a stable identity string for an event. Events carrying a
// request ID are keyed on it alone; otherwise identity is approximated by the
// timestamp, model, and type, which is stable across re-delivery of the same
// frame.
func DedupeKey(e Event) string {
	if e.RequestID != "" {
		return e.RequestID
	}
	return fmt.Sprintf("%d|%s|%s", e.Timestamp.UnixNano(), e.Model, e.Type)
}
