package record

import (
	"strconv"
	"testing"
	"time"
)

func TestCollection_BoundEvictsOldest(t *testing.T) {
	c := NewCollection(3)
	for i := 0; i < 5; i++ {
		c.Append(Request{ID: strconv.Itoa(i)})
	}

	items := c.Items()
	if len(items) != 3 {
		t.Fatalf("Len() = %d, want 3", len(items))
	}
	for i, want := range []string{"2", "3", "4"} {
		if items[i].ID != want {
			t.Errorf("items[%d].ID = %q, want %q (oldest-first eviction)", i, items[i].ID, want)
		}
	}
}

func TestCollection_StatsAlwaysFresh(t *testing.T) {
	c := NewCollection(100)

	s := c.Stats()
	if s.TotalRequests != 0 || s.SuccessRate != 0 {
		t.Fatalf("Stats() on empty collection = %+v", s)
	}

	c.Append(Request{Provider: "openai", StatusCode: 200, Tokens: 100, DurationMs: 50})
	c.Append(Request{Provider: "openai", StatusCode: 429, Tokens: 0, DurationMs: 150})
	c.Append(Request{Provider: "anthropic", StatusCode: 201, Tokens: 200, DurationMs: 100})

	s = c.Stats()
	if s.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", s.TotalRequests)
	}
	if want := 100.0 * 2 / 3; s.SuccessRate < want-0.01 || s.SuccessRate > want+0.01 {
		t.Errorf("SuccessRate = %v, want ~%v", s.SuccessRate, want)
	}
	if s.TotalTokens != 300 {
		t.Errorf("TotalTokens = %d, want 300", s.TotalTokens)
	}
	if s.AverageDurationMs != 100 {
		t.Errorf("AverageDurationMs = %v, want 100", s.AverageDurationMs)
	}
	if s.ByProvider["openai"] != 2 || s.ByProvider["anthropic"] != 1 {
		t.Errorf("ByProvider = %v", s.ByProvider)
	}

	// A later append must be visible on the next read.
	c.Append(Request{Provider: "openai", StatusCode: 500})
	if got := c.Stats().TotalRequests; got != 4 {
		t.Errorf("TotalRequests after append = %d, want 4", got)
	}
}

func TestRequest_Derived(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{200, true}, {204, true}, {299, true},
		{199, false}, {300, false}, {404, false}, {500, false}, {0, false},
	}
	for _, tt := range tests {
		r := Request{StatusCode: tt.code}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("IsSuccess() with %d = %v, want %v", tt.code, got, tt.want)
		}
	}

	if (Request{}).HasFallback() {
		t.Errorf("HasFallback() = true with no attempts")
	}
	if !(Request{FallbackAttempts: []string{"openai->anthropic"}}).HasFallback() {
		t.Errorf("HasFallback() = false with attempts")
	}
}

func TestLogCollection_Bound(t *testing.T) {
	c := NewLogCollection(2)
	now := time.Now()
	for i := 0; i < 4; i++ {
		c.Append(LogEntry{ID: strconv.Itoa(i), Timestamp: now})
	}
	items := c.Items()
	if len(items) != 2 || items[0].ID != "2" || items[1].ID != "3" {
		t.Errorf("Items() = %+v, want last two entries", items)
	}
}
