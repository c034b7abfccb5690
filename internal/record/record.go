// Package record holds the in-memory request and log collections: bounded,
// insertion-ordered, with derived aggregate statistics and the fixed
// filtering pipeline applied for display.
package record

import (
	"time"
)

// Request is one observed API call. Records are immutable after creation;
// the local ID is stable for diffing and distinct from the externally
// supplied request ID.
type Request struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	Endpoint         string    `json:"endpoint"`
	Source           string    `json:"source,omitempty"`
	AccountHint      string    `json:"account_hint,omitempty"`
	StatusCode       int       `json:"status_code,omitempty"`
	Tokens           int64     `json:"tokens,omitempty"`
	DurationMs       float64   `json:"duration_ms,omitempty"`
	FallbackAttempts []string  `json:"fallback_attempts,omitempty"`
	PayloadSnippet   string    `json:"payload_snippet,omitempty"`
}

// IsSuccess reports whether the status code falls in the success range.
func (r Request) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HasFallback reports whether the call was rerouted at least once.
func (r Request) HasFallback() bool {
	return len(r.FallbackAttempts) > 0
}

// LogEntry is one structured proxy log line.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Account   string    `json:"account,omitempty"`
}

// Stats are aggregate figures derived over the full collection on every
// read, so they always reflect current content.
type Stats struct {
	TotalRequests     int            `json:"total_requests"`
	SuccessRate       float64        `json:"success_rate"`
	TotalTokens       int64          `json:"total_tokens"`
	AverageDurationMs float64        `json:"average_duration_ms"`
	ByProvider        map[string]int `json:"by_provider"`
}
