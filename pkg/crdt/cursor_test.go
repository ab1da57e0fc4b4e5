package crdt

import "testing"

func TestCursorTableSetGetClear(t *testing.T) {
	ct := NewCursorTable()
	ct.Set(2, CursorState{Point: 3})
	got, ok := ct.Get(2)
	if !ok || got.Point != 3 {
		t.Fatalf("Get(2) = %+v, %v", got, ok)
	}
	ct.Clear(2)
	if _, ok := ct.Get(2); ok {
		t.Fatal("cursor should be gone after Clear")
	}
}

func TestResolveCursorIDEndOfDocument(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("HELLO"))
	if got := ResolveCursorID(d, ID{}); got != d.Len() {
		t.Errorf("empty ID should resolve to end of document, got %d want %d", got, d.Len())
	}
}

func TestCursorLivenessAfterRemoteDelete(t *testing.T) {
	// Scenario from spec.md §8.4: site 2 places its cursor at position 3
	// in "HELLO" (before 'L' at index 3 — the second 'L'); site 1 deletes
	// 'H'. After exchange, site 1's replica must show site 2's cursor
	// still pointing at the same character, now at position 2.
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("HELLO"))

	pointID, _ := d.IDAt(3) // the second 'L'
	pos := ResolveCursorID(d, pointID)
	if pos != 3 {
		t.Fatalf("setup: cursor resolved to %d, want 3", pos)
	}

	// Site 1 deletes 'H' locally.
	DeriveDelete(d, 0, 1)
	if d.Text() != "ELLO" {
		t.Fatalf("Text() = %q", d.Text())
	}

	if got := ResolveCursorID(d, pointID); got != 2 {
		t.Errorf("cursor should track its character to position 2, got %d", got)
	}
}

func TestLocalCursorTrackerSuppressesUnchanged(t *testing.T) {
	var tracker LocalCursorTracker
	if !tracker.Changed(CursorState{Point: 1}) {
		t.Error("first observation must always report changed")
	}
	if tracker.Changed(CursorState{Point: 1}) {
		t.Error("repeating the same state must not report changed")
	}
	if !tracker.Changed(CursorState{Point: 2}) {
		t.Error("a genuinely different state must report changed")
	}
}
