package record

import (
	"strings"

	"github.com/quotio/usage-observer/internal/evidence"
	"github.com/quotio/usage-observer/internal/focus"
)

// StatusClass selects a status-code range.
type StatusClass string

// Status classes accepted by Criteria.
const (
	StatusAll         StatusClass = "all"
	StatusSuccess     StatusClass = "success"
	StatusClientError StatusClass = "client_error"
	StatusServerError StatusClass = "server_error"
)

func (s StatusClass) matches(code int) bool {
	switch s {
	case StatusSuccess:
		return code >= 200 && code < 300
	case StatusClientError:
		return code >= 400 && code < 500
	case StatusServerError:
		return code >= 500 && code < 600
	default:
		return true
	}
}

// EvidenceResolver joins records against the evidence index. Implemented by
// the correlation engine; a nil resolver disables enrichment.
type EvidenceResolver interface {
	// ResolveEvidence returns the best-matching evidence for a request,
	// exact id match first, approximate second.
	ResolveEvidence(r Request) (evidence.Record, bool)
	// ResolveByID returns evidence for an exact request id.
	ResolveByID(requestID string) (evidence.Record, bool)
}

// Criteria selects which records a view displays. Stages apply in a fixed
// order: provider, source, status class, fallback-only, free-text search,
// then focus (strict, else relaxed when strict comes up empty).
type Criteria struct {
	Provider     string
	Source       string
	Status       StatusClass
	FallbackOnly bool
	Search       string
	Level        string // log views only
	Focus        *focus.Filter
	FocusEnabled bool
}

// FilterRequests applies the pipeline to a request collection snapshot.
func FilterRequests(records []Request, cr Criteria, res EvidenceResolver) []Request {
	out := records

	if cr.Provider != "" {
		out = keep(out, func(r Request) bool {
			return strings.EqualFold(r.Provider, cr.Provider)
		})
	}

	if cr.Source != "" {
		out = keep(out, func(r Request) bool {
			src := r.Source
			if src == "" && res != nil {
				// Fall back to correlated evidence when the record
				// carries no direct source.
				if ev, ok := res.ResolveEvidence(r); ok {
					src = ev.Source
				}
			}
			return containsFold(src, cr.Source)
		})
	}

	if cr.Status != "" && cr.Status != StatusAll {
		out = keep(out, func(r Request) bool {
			return cr.Status.matches(r.StatusCode)
		})
	}

	if cr.FallbackOnly {
		out = keep(out, Request.HasFallback)
	}

	if cr.Search != "" {
		term := strings.ToLower(cr.Search)
		out = keep(out, func(r Request) bool {
			if anyContains(term, r.Provider, r.Model, r.Endpoint, r.Source,
				r.AccountHint, r.RequestID, r.PayloadSnippet) {
				return true
			}
			if res != nil {
				if ev, ok := res.ResolveEvidence(r); ok && anyContains(term, ev.Error) {
					return true
				}
			}
			return false
		})
	}

	if cr.FocusEnabled && cr.Focus != nil && !cr.Focus.IsZero() {
		subjects := make([]focus.Subject, len(out))
		for i, r := range out {
			subjects[i] = requestSubject(r, res)
		}
		idx := cr.Focus.Narrow(subjects)
		focused := make([]Request, 0, len(idx))
		for _, i := range idx {
			focused = append(focused, out[i])
		}
		out = focused
	}

	return out
}

// FilterLogs applies the log-view subset of the pipeline: level, free-text
// search, then focus.
func FilterLogs(entries []LogEntry, cr Criteria, res EvidenceResolver) []LogEntry {
	out := entries

	if cr.Level != "" {
		out = keepLogs(out, func(e LogEntry) bool {
			return strings.EqualFold(e.Level, cr.Level)
		})
	}

	if cr.Search != "" {
		term := strings.ToLower(cr.Search)
		out = keepLogs(out, func(e LogEntry) bool {
			return anyContains(term, e.Level, e.Message, e.Source, e.RequestID, e.Model, e.Account)
		})
	}

	if cr.FocusEnabled && cr.Focus != nil && !cr.Focus.IsZero() {
		subjects := make([]focus.Subject, len(out))
		for i, e := range out {
			subjects[i] = logSubject(e, res)
		}
		idx := cr.Focus.Narrow(subjects)
		focused := make([]LogEntry, 0, len(idx))
		for _, i := range idx {
			focused = append(focused, out[i])
		}
		out = focused
	}

	return out
}

func requestSubject(r Request, res EvidenceResolver) focus.Subject {
	s := focus.Subject{
		RequestID: r.RequestID,
		Model:     r.Model,
		Account:   r.AccountHint,
		Source:    r.Source,
		Endpoint:  r.Endpoint,
		Timestamp: r.Timestamp,
	}
	if res != nil {
		if ev, ok := res.ResolveEvidence(r); ok {
			s.EvidenceID = ev.RequestID
			s.EvidenceTimestamp = ev.Date
			if s.Account == "" {
				s.Account = ev.AuthIndex
			}
		}
	}
	return s
}

func logSubject(e LogEntry, res EvidenceResolver) focus.Subject {
	s := focus.Subject{
		RequestID: e.RequestID,
		Model:     e.Model,
		Account:   e.Account,
		Source:    e.Source,
		Timestamp: e.Timestamp,
	}
	if res != nil && e.RequestID != "" {
		if ev, ok := res.ResolveByID(e.RequestID); ok {
			s.EvidenceID = ev.RequestID
			s.EvidenceTimestamp = ev.Date
		}
	}
	return s
}

func keep(in []Request, pred func(Request) bool) []Request {
	out := make([]Request, 0, len(in))
	for _, r := range in {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func keepLogs(in []LogEntry, pred func(LogEntry) bool) []LogEntry {
	out := make([]LogEntry, 0, len(in))
	for _, e := range in {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

func anyContains(term string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
