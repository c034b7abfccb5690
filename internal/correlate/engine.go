// Package correlate joins locally observed request records against polled
// usage evidence and the configured provider accounts. Resolution is
// strict-then-relaxed: exact ids before heuristics, and a deliberate
// better-than-nothing account fallback so views always show some context.
package correlate

import (
	"strings"
	"sync"

	"github.com/quotio/usage-observer/internal/evidence"
	"github.com/quotio/usage-observer/internal/management"
	"github.com/quotio/usage-observer/internal/record"
)

// Correlation is the enrichment produced for one record. Either field may be
// nil; a failed heuristic lookup is not an error.
type Correlation struct {
	Evidence *evidence.Record
	Account  *management.AuthAccount
}

// Engine resolves evidence and account attribution for request records.
// Accounts are refreshed by the polling loop; the engine only reads them.
type Engine struct {
	index *evidence.Index

	mu       sync.RWMutex
	accounts []management.AuthAccount
}

// NewEngine creates an Engine over the given evidence index.
func NewEngine(index *evidence.Index) *Engine {
	return &Engine{index: index}
}

// SetAccounts replaces the account list used for attribution.
func (e *Engine) SetAccounts(accounts []management.AuthAccount) {
	e.mu.Lock()
	e.accounts = accounts
	e.mu.Unlock()
}

// Accounts returns a copy of the current account list.
func (e *Engine) Accounts() []management.AuthAccount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]management.AuthAccount, len(e.accounts))
	copy(out, e.accounts)
	return out
}

// Resolve produces the best-matching evidence and account for a record.
func (e *Engine) Resolve(r record.Request) Correlation {
	var c Correlation
	if ev, ok := e.ResolveEvidence(r); ok {
		c.Evidence = &ev
	}
	if acct, ok := e.resolveAccount(r, c.Evidence); ok {
		c.Account = &acct
	}
	return c
}

// ResolveEvidence looks up evidence for a record: exact request-id match
// first, approximate (model, outcome, 3s window) only when the record has no
// id. Implements record.EvidenceResolver.
func (e *Engine) ResolveEvidence(r record.Request) (evidence.Record, bool) {
	if r.RequestID != "" {
		return e.index.Lookup(r.RequestID)
	}
	return e.index.LookupApproximate(r.Model, r.Timestamp, r.IsSuccess())
}

// ResolveByID looks up evidence for an exact request id. Implements
// record.EvidenceResolver.
func (e *Engine) ResolveByID(requestID string) (evidence.Record, bool) {
	return e.index.Lookup(requestID)
}

// resolveAccount applies the ordered attribution cascade:
//
//  1. narrow candidates to the record's provider, when known;
//  2. derive a hint from the record, else from evidence;
//  3. with a hint: exact match on index, then name, then substring over
//     index, name, and email, in that priority order;
//  4. otherwise the first remaining candidate. Step 4 can misattribute when
//     several accounts share a provider; kept deliberately so the view
//     always has account context when one plausible candidate exists.
func (e *Engine) resolveAccount(r record.Request, ev *evidence.Record) (management.AuthAccount, bool) {
	e.mu.RLock()
	accounts := e.accounts
	e.mu.RUnlock()

	candidates := accounts
	if r.Provider != "" {
		candidates = nil
		for _, a := range accounts {
			if strings.EqualFold(a.Provider, r.Provider) {
				candidates = append(candidates, a)
			}
		}
	}
	if len(candidates) == 0 {
		return management.AuthAccount{}, false
	}

	hint := r.AccountHint
	if hint == "" && ev != nil {
		hint = ev.AuthIndex
	}

	if hint != "" {
		for _, a := range candidates {
			if strings.EqualFold(a.Index, hint) {
				return a, true
			}
		}
		for _, a := range candidates {
			if strings.EqualFold(a.Name, hint) {
				return a, true
			}
		}
		for _, a := range candidates {
			if containsFold(a.Index, hint) || containsFold(a.Name, hint) || containsFold(a.Email, hint) {
				return a, true
			}
		}
	}

	return candidates[0], true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
