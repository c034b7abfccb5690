package correlate

import (
	"testing"
	"time"

	"github.com/quotio/usage-observer/internal/evidence"
	"github.com/quotio/usage-observer/internal/management"
	"github.com/quotio/usage-observer/internal/record"
)

func newEngine(records []evidence.Record, accounts []management.AuthAccount) *Engine {
	ix := evidence.NewIndex()
	ix.Replace(records)
	e := NewEngine(ix)
	e.SetAccounts(accounts)
	return e
}

func TestResolveEvidence_ExactBeforeApproximate(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newEngine([]evidence.Record{
		{RequestID: "r1", Model: "gpt-4o", Success: true, Tokens: 7, Date: base},
		{Model: "gpt-4o", Success: true, Tokens: 99, Date: base},
	}, nil)

	// With an id, only the exact row counts.
	ev, ok := e.ResolveEvidence(record.Request{RequestID: "r1", Model: "gpt-4o", Timestamp: base, StatusCode: 200})
	if !ok || ev.Tokens != 7 {
		t.Fatalf("ResolveEvidence() = %+v, %v; want exact row", ev, ok)
	}

	// Without an id, the approximate scan applies.
	ev, ok = e.ResolveEvidence(record.Request{Model: "gpt-4o", Timestamp: base.Add(time.Second), StatusCode: 200})
	if !ok {
		t.Fatalf("ResolveEvidence() missed approximate match")
	}

	// An unknown id does not degrade to approximate matching.
	if _, ok := e.ResolveEvidence(record.Request{RequestID: "missing", Model: "gpt-4o", Timestamp: base, StatusCode: 200}); ok {
		t.Errorf("ResolveEvidence() matched approximately despite an unresolved id")
	}
}

func TestResolveAccount_ProviderNarrowsCandidates(t *testing.T) {
	accounts := []management.AuthAccount{
		{Provider: "openai", Index: "oa-1", Name: "work"},
		{Provider: "anthropic", Index: "an-1", Name: "personal"},
	}
	e := newEngine(nil, accounts)

	c := e.Resolve(record.Request{Provider: "Anthropic"})
	if c.Account == nil || c.Account.Index != "an-1" {
		t.Errorf("Resolve() account = %+v, want anthropic candidate", c.Account)
	}

	c = e.Resolve(record.Request{Provider: "gemini"})
	if c.Account != nil {
		t.Errorf("Resolve() account = %+v, want nil for unknown provider", c.Account)
	}
}

func TestResolveAccount_HintCascade(t *testing.T) {
	accounts := []management.AuthAccount{
		{Provider: "openai", Index: "acct-2", Name: "backup", Email: "ops@corp.io"},
		{Provider: "openai", Index: "acct-1", Name: "Primary", Email: "alice@corp.io"},
	}
	e := newEngine(nil, accounts)

	tests := []struct {
		name string
		hint string
		want string
	}{
		{"exact index", "ACCT-1", "acct-1"},
		{"exact name", "primary", "acct-1"},
		{"substring index", "cct-2", "acct-2"},
		{"substring email", "alice@", "acct-1"},
		{"no match falls back to first candidate", "nobody", "acct-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.Resolve(record.Request{Provider: "openai", AccountHint: tt.hint})
			if c.Account == nil {
				t.Fatalf("Resolve() account = nil")
			}
			if c.Account.Index != tt.want {
				t.Errorf("Resolve() account = %q, want %q", c.Account.Index, tt.want)
			}
		})
	}
}

func TestResolveAccount_HintFromEvidence(t *testing.T) {
	base := time.Now()
	e := newEngine(
		[]evidence.Record{{RequestID: "r1", AuthIndex: "acct-9", Date: base}},
		[]management.AuthAccount{
			{Provider: "openai", Index: "acct-1"},
			{Provider: "openai", Index: "acct-9"},
		},
	)

	c := e.Resolve(record.Request{RequestID: "r1", Provider: "openai", Timestamp: base})
	if c.Evidence == nil || c.Evidence.AuthIndex != "acct-9" {
		t.Fatalf("Resolve() evidence = %+v", c.Evidence)
	}
	if c.Account == nil || c.Account.Index != "acct-9" {
		t.Errorf("Resolve() account = %+v, want acct-9 via evidence hint", c.Account)
	}
}

func TestResolveAccount_FirstCandidateFallback(t *testing.T) {
	// Known imprecision: with no hint and several same-provider accounts,
	// some candidate from the filtered set is returned. Assert membership,
	// not a specific winner.
	accounts := []management.AuthAccount{
		{Provider: "openai", Index: "a"},
		{Provider: "openai", Index: "b"},
	}
	e := newEngine(nil, accounts)

	c := e.Resolve(record.Request{Provider: "openai"})
	if c.Account == nil {
		t.Fatalf("Resolve() account = nil, want some candidate")
	}
	if c.Account.Index != "a" && c.Account.Index != "b" {
		t.Errorf("Resolve() account = %q, want a member of the filtered set", c.Account.Index)
	}
}
