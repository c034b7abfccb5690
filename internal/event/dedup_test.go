package event

import (
	"testing"
	"time"
)

func TestDedupeKey_RequestIDWins(t *testing.T) {
	e := Event{RequestID: "r1", Model: "gpt-4o", Type: TypeRequest, Timestamp: time.Now()}

	key := DedupeKey(e)
	if key != "r1" {
		t.Errorf("DedupeKey() = %q, want %q", key, "r1")
	}

	// Identical request ID with different surrounding fields must key the same.
	other := Event{RequestID: "r1", Model: "claude-sonnet", Type: TypeError, Timestamp: e.Timestamp.Add(time.Hour)}
	if DedupeKey(other) != key {
		t.Errorf("DedupeKey() varies with non-id fields for id-bearing events")
	}
}

func TestDedupeKey_CompositeFallback(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Event{Timestamp: ts, Model: "gpt-4o", Type: TypeRequest}
	b := Event{Timestamp: ts, Model: "gpt-4o", Type: TypeRequest}

	if DedupeKey(a) != DedupeKey(b) {
		t.Errorf("DedupeKey() not deterministic for id-less events")
	}

	c := Event{Timestamp: ts, Model: "gpt-4o", Type: TypeError}
	if DedupeKey(a) == DedupeKey(c) {
		t.Errorf("DedupeKey() collided across different event types")
	}
}

func TestDeduplicator_RejectsDuplicate(t *testing.T) {
	d := NewDeduplicator()
	e := Event{RequestID: "r1", Seq: 5, Timestamp: time.Now()}

	if !d.Observe(e) {
		t.Fatalf("Observe() rejected first delivery")
	}
	if d.Observe(e) {
		t.Errorf("Observe() accepted duplicate delivery")
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
	if d.LastSeenSeq() != 5 {
		t.Errorf("LastSeenSeq() = %d, want 5", d.LastSeenSeq())
	}
}

func TestDeduplicator_SeqMonotonic(t *testing.T) {
	d := NewDeduplicator()

	seqs := []int64{3, 7, 2}
	want := []int64{3, 7, 7}
	for i, seq := range seqs {
		d.Observe(Event{RequestID: "r" + string(rune('a'+i)), Seq: seq})
		if got := d.LastSeenSeq(); got != want[i] {
			t.Errorf("after seq %d: LastSeenSeq() = %d, want %d", seq, got, want[i])
		}
	}
}

func TestDeduplicator_DuplicateStillAdvancesSeq(t *testing.T) {
	d := NewDeduplicator()

	d.Observe(Event{RequestID: "r1", Seq: 1})
	// Same content redelivered with a later seq: rejected, but cursor moves.
	if d.Observe(Event{RequestID: "r1", Seq: 9}) {
		t.Errorf("Observe() accepted content duplicate")
	}
	if d.LastSeenSeq() != 9 {
		t.Errorf("LastSeenSeq() = %d, want 9", d.LastSeenSeq())
	}
}
