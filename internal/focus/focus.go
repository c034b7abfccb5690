// Package focus implements the cross-screen "spotlight" filter: an ephemeral
// query that narrows a request or log collection to entries related to one
// logical request. Matching is two-tier: strict (AND-based, exact-biased)
// first, relaxed (OR-based, heuristic) only when strict yields nothing.
package focus

import (
	"strings"
	"time"
)

// relaxedWindow is how far a record's timestamp may drift from the focus
// timestamp and still qualify under relaxed matching. Calibrated for joining
// independently-clocked sources; do not tighten.
const relaxedWindow = 6 * time.Hour

// genericSources are origin tokens that describe the subsystem that produced
// the focus, not a meaningful filter value. They never constrain matching.
var genericSources = map[string]struct{}{
	"realtime":       {},
	"request":        {},
	"event":          {},
	"usage.realtime": {},
}

// Filter is an ephemeral cross-screen query. A set RequestID is
// authoritative: all other fields are ignored in strict mode once present.
type Filter struct {
	RequestID string    `json:"request_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Account   string    `json:"account,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Origin    string    `json:"origin,omitempty"`
}

// IsZero reports whether the filter carries no matchable signal.
func (f Filter) IsZero() bool {
	return f.RequestID == "" && f.Model == "" && f.Account == "" &&
		f.Source == "" && f.Timestamp.IsZero()
}

// Subject is the view of a record the filter matches against. EvidenceID and
// EvidenceTimestamp come from correlation and are zero-valued when no
// evidence resolved.
type Subject struct {
	RequestID         string
	EvidenceID        string
	Model             string
	Account           string
	Source            string
	Endpoint          string
	Timestamp         time.Time
	EvidenceTimestamp time.Time
}

// sourceConstraint returns the source term to filter on, or "" when the
// focus source is empty or generic.
func (f Filter) sourceConstraint() string {
	if f.Source == "" {
		return ""
	}
	if _, generic := genericSources[strings.ToLower(f.Source)]; generic {
		return ""
	}
	return f.Source
}

// MatchStrict applies AND semantics over the present focus fields. With a
// request ID set, only id equality counts (against the subject's own or
// evidence-correlated id, case-insensitively).
func (f Filter) MatchStrict(s Subject) bool {
	if f.RequestID != "" {
		return matchesID(f.RequestID, s)
	}

	if f.Model != "" && !containsFold(s.Model, f.Model) {
		return false
	}
	// The account constraint only binds when the subject actually observed
	// an account; records without attribution pass through.
	if f.Account != "" && s.Account != "" && !containsFold(s.Account, f.Account) {
		return false
	}
	if src := f.sourceConstraint(); src != "" {
		if !containsFold(s.Source, src) && !containsFold(s.Endpoint, src) {
			return false
		}
	}
	return true
}

// MatchRelaxed applies OR semantics: any single field match qualifies, and a
// subject whose own or evidence timestamp lies within relaxedWindow of the
// focus timestamp also qualifies.
func (f Filter) MatchRelaxed(s Subject) bool {
	if f.RequestID != "" && matchesID(f.RequestID, s) {
		return true
	}
	if f.Model != "" && containsFold(s.Model, f.Model) {
		return true
	}
	if f.Account != "" && s.Account != "" && containsFold(s.Account, f.Account) {
		return true
	}
	if src := f.sourceConstraint(); src != "" {
		if containsFold(s.Source, src) || containsFold(s.Endpoint, src) {
			return true
		}
	}
	if !f.Timestamp.IsZero() {
		if withinWindow(s.Timestamp, f.Timestamp) || withinWindow(s.EvidenceTimestamp, f.Timestamp) {
			return true
		}
	}
	return false
}

// Narrow filters subjects strict-first, falling back to relaxed when strict
// returns nothing, so the caller never lands on an empty screen while any
// heuristic signal matches. The returned indices reference the input slice.
func (f Filter) Narrow(subjects []Subject) []int {
	var strict []int
	for i, s := range subjects {
		if f.MatchStrict(s) {
			strict = append(strict, i)
		}
	}
	if len(strict) > 0 {
		return strict
	}

	var relaxed []int
	for i, s := range subjects {
		if f.MatchRelaxed(s) {
			relaxed = append(relaxed, i)
		}
	}
	return relaxed
}

func matchesID(id string, s Subject) bool {
	if s.RequestID != "" && strings.EqualFold(s.RequestID, id) {
		return true
	}
	return s.EvidenceID != "" && strings.EqualFold(s.EvidenceID, id)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func withinWindow(ts, anchor time.Time) bool {
	if ts.IsZero() {
		return false
	}
	d := ts.Sub(anchor)
	if d < 0 {
		d = -d
	}
	return d <= relaxedWindow
}
