package crdt

import "testing"

func TestDeriveInsertFreshDocument(t *testing.T) {
	d := NewDocument()
	ops := DeriveInsert(d, 1, 0, []rune("hi"))
	if len(ops) != 1 {
		t.Fatalf("expected a single fresh block, got %d ops", len(ops))
	}
	if d.Text() != "hi" {
		t.Fatalf("Text() = %q", d.Text())
	}
	if Site(ops[0].ID) != 1 {
		t.Errorf("expected op tagged with site 1")
	}
}

func TestDeriveInsertMergesContiguousTyping(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("h"))
	ops := DeriveInsert(d, 1, 1, []rune("i"))
	if len(ops) != 1 {
		t.Fatalf("expected merge into the open block, got %d ops", len(ops))
	}
	if Offset(ops[0].ID) != 1 {
		t.Errorf("merged char should continue the block's offsets, got offset %d", Offset(ops[0].ID))
	}
	if d.Text() != "hi" {
		t.Fatalf("Text() = %q", d.Text())
	}
	// Only one run should cover the whole two-character block.
	id0, _ := d.IDAt(0)
	id1, _ := d.IDAt(1)
	if !BaseEqual(id0, id1) {
		t.Errorf("expected both characters to share one base after merge")
	}
}

func TestDeriveInsertOtherSiteDoesNotMerge(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("h"))
	ops := DeriveInsert(d, 2, 1, []rune("i"))
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	if Site(ops[0].ID) != 2 {
		t.Errorf("expected op tagged with site 2")
	}
	id0, _ := d.IDAt(0)
	id1, _ := d.IDAt(1)
	if BaseEqual(id0, id1) {
		t.Errorf("different sites must not merge into the same block")
	}
}

func TestApplyInsertSplitsInteriorBlockAndNeverGhostMerges(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("HELLO")) // one block, offsets 0..4, site 1

	// A remote site generates an ID strictly between the 'E' (pos 1) and
	// the first 'L' (pos 2) and applies it — this must split site 1's
	// block rather than require it pre-split.
	low, _ := d.IDAt(1)
	high, _ := d.IDAt(2)
	remoteID := GenerateBetween(low, Offset(low), high, Offset(high), 2)
	pos := ApplyInsert(d, remoteID, 2, "!")
	if pos != 2 {
		t.Fatalf("ApplyInsert landed at %d, want 2", pos)
	}
	if d.Text() != "HE!LLO" {
		t.Fatalf("Text() = %q, want %q", d.Text(), "HE!LLO")
	}

	// The left remainder ("HE") must no longer be end-of-block: site 1
	// typing right after it must NOT silently reclaim the interior
	// territory now owned by the remote insert (invariant 4).
	if d.EOBAt(1) {
		t.Fatalf("left remainder of the split block must not be end-of-block")
	}
	ops := DeriveInsert(d, 1, 2, []rune("?"))
	if len(ops) != 1 {
		t.Fatalf("expected a fresh block (no ghost merge) inserting after the split, got %d ops", len(ops))
	}
	if d.Text() != "HE?!LLO" {
		t.Fatalf("Text() = %q", d.Text())
	}
}

func TestDeriveDeleteCapturesRuns(t *testing.T) {
	d := NewDocument()
	DeriveInsert(d, 1, 0, []rune("HELLO"))

	op := DeriveDelete(d, 1, 3) // delete "EL"
	if d.Text() != "HLO" {
		t.Fatalf("Text() = %q", d.Text())
	}
	total := 0
	for _, r := range op.Runs {
		total += r.Length
	}
	if total != 2 {
		t.Errorf("expected pre-image runs to cover 2 deleted chars, got %d", total)
	}
}

func TestDeriveInsertLargeBlockSplitsAtMaxOffset(t *testing.T) {
	d := NewDocument()
	s := make([]rune, int(MaxOffset)+5)
	for i := range s {
		s[i] = 'a'
	}
	ops := DeriveInsert(d, 1, 0, s)
	if len(ops) != 2 {
		t.Fatalf("expected the insert to split into 2 blocks at MaxOffset, got %d", len(ops))
	}
	if len(ops[0].Content) != int(MaxOffset) {
		t.Errorf("first block should be exactly MaxOffset long, got %d", len(ops[0].Content))
	}
}
