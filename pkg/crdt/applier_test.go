package crdt

import "testing"

func TestApplyInsertAtDocumentStartAndEnd(t *testing.T) {
	d := NewDocument()
	id1 := GenerateBetween(nil, 0, nil, 0, 1)
	pos := ApplyInsert(d, id1, 0, "A")
	if pos != 0 || d.Text() != "A" {
		t.Fatalf("first insert: pos=%d text=%q", pos, d.Text())
	}

	last, _ := d.IDAt(0)
	id2 := GenerateBetween(last, Offset(last), nil, 0, 2)
	pos = ApplyInsert(d, id2, 1, "B")
	if pos != 1 || d.Text() != "AB" {
		t.Fatalf("append: pos=%d text=%q", pos, d.Text())
	}
}

func TestApplyDeleteIsIdempotent(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("HELLO"))
	dr := DeriveDelete(d, 1, 3) // "EL"
	if d.Text() != "HLO" {
		t.Fatalf("Text() = %q", d.Text())
	}

	// Re-applying the same delete op must be a no-op (characters already
	// gone are silently skipped).
	ApplyDelete(d, dr.Runs)
	if d.Text() != "HLO" {
		t.Fatalf("re-applying delete changed text: %q", d.Text())
	}
}

func TestApplyDeletePartialOverlapWithConcurrentEdit(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("HELLO"))
	pre := DeriveDelete(NewDocumentCopy(d), 1, 5) // capture pre-image for "ELLO" without mutating d

	// Simulate a concurrent local delete of just "EL" before the remote
	// delete for "ELLO" arrives.
	DeriveDelete(d, 1, 3)
	if d.Text() != "HLO" {
		t.Fatalf("Text() = %q", d.Text())
	}

	ApplyDelete(d, pre.Runs)
	if d.Text() != "H" {
		t.Fatalf("Text() = %q, want %q", d.Text(), "H")
	}
}

// NewDocumentCopy returns a deep copy of d, used by tests to capture a
// pre-image independently of further mutation to the original.
func NewDocumentCopy(d *Document) *Document {
	cp := &Document{text: append([]rune(nil), d.text...)}
	for _, r := range d.runs {
		base := append(ID(nil), r.base...)
		cp.runs = append(cp.runs, run{begin: r.begin, end: r.end, base: base, eob: r.eob})
	}
	return cp
}
