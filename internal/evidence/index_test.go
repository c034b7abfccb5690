package evidence

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSource struct {
	records []Record
	err     error
}

func (s *stubSource) RequestHistory(ctx context.Context, limit int) ([]Record, error) {
	return s.records, s.err
}

func TestIndex_RefreshReplaces(t *testing.T) {
	ix := NewIndex()

	first := make([]Record, 50)
	for i := range first {
		first[i] = Record{RequestID: "old-" + string(rune('a'+i%26)), Model: "gpt-4o"}
	}
	ix.Replace(first)

	second := []Record{
		{RequestID: "new-1", Model: "claude-sonnet"},
		{RequestID: "new-2", Model: "claude-sonnet"},
	}
	if err := ix.Refresh(context.Background(), &stubSource{records: second}, 100); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if ix.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (full replace, not accumulation)", ix.Len())
	}
	if _, ok := ix.Lookup("old-a"); ok {
		t.Errorf("Lookup() found record from a superseded batch")
	}
	if _, ok := ix.Lookup("new-1"); !ok {
		t.Errorf("Lookup() missed record from the current batch")
	}
}

func TestIndex_RefreshFailureKeepsSnapshot(t *testing.T) {
	ix := NewIndex()
	ix.Replace([]Record{{RequestID: "r1", Tokens: 42}})

	err := ix.Refresh(context.Background(), &stubSource{err: errors.New("boom")}, 100)
	if err == nil {
		t.Fatalf("Refresh() error = nil, want error")
	}

	r, ok := ix.Lookup("r1")
	if !ok || r.Tokens != 42 {
		t.Errorf("Lookup(r1) = %+v, %v; want prior snapshot intact", r, ok)
	}
}

func TestIndex_LookupExactIsCaseSensitive(t *testing.T) {
	ix := NewIndex()
	ix.Replace([]Record{{RequestID: "ReqA"}})

	if _, ok := ix.Lookup("ReqA"); !ok {
		t.Errorf("Lookup(ReqA) missed exact match")
	}
	if _, ok := ix.Lookup("reqa"); ok {
		t.Errorf("Lookup(reqa) matched despite case mismatch")
	}
	if _, ok := ix.Lookup(""); ok {
		t.Errorf("Lookup(\"\") matched empty id")
	}
}

func TestIndex_LookupApproximate(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ix := NewIndex()
	ix.Replace([]Record{
		{Model: "gpt-4o", Success: true, Date: base, Tokens: 10},
		{Model: "gpt-4o", Success: false, Date: base, Tokens: 20},
	})

	tests := []struct {
		name    string
		model   string
		ts      time.Time
		success bool
		want    bool
		tokens  int64
	}{
		{"within window", "gpt-4o", base.Add(2 * time.Second), true, true, 10},
		{"window edge", "gpt-4o", base.Add(3 * time.Second), true, true, 10},
		{"outside window", "gpt-4o", base.Add(4 * time.Second), true, false, 0},
		{"success mismatch picks failure row", "gpt-4o", base, false, true, 20},
		{"model mismatch", "claude-sonnet", base, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := ix.LookupApproximate(tt.model, tt.ts, tt.success)
			if ok != tt.want {
				t.Fatalf("LookupApproximate() ok = %v, want %v", ok, tt.want)
			}
			if ok && r.Tokens != tt.tokens {
				t.Errorf("LookupApproximate() tokens = %d, want %d", r.Tokens, tt.tokens)
			}
		})
	}
}
