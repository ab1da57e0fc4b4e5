package crdt

// ApplyInsert applies a remote insertion of content, whose first character
// carries id as its base, implementing spec.md §4.D. The position is
// derived purely from id's sort order (posHint is accepted for wire
// compatibility but never required — see FindID), so applying the same
// insert twice is safe only if the caller does not call it twice; ApplyInsert
// itself does not deduplicate, since the wire layer guarantees delivery
// exactly once to each connection it's replayed to.
//
// When id falls strictly inside a block this replica doesn't own, the
// block is split first: invariant 4 (no ghost merging) is preserved by
// Document.Split clearing end-of-block on the left remainder, so a later
// local append at the old block's end can't silently reclaim territory
// that now belongs to the newly-applied remote insert.
//
// Before annotating the new range, it checks spec.md §4.D's merge case:
// if the left neighbor's base equals id's base and offsetOf(left)+1 =
// offsetOf(id), the new content continues that run's block rather than
// starting one of its own — otherwise two adjacent inserts of the same
// block (e.g. insert(X@0,"A") then insert(X@1,"B")) would each set their
// own eob=true, leaving the non-last character "A" flagged eob=true in
// violation of invariant 3 ("eob set only on the last character of the
// run").
func ApplyInsert(d *Document, id ID, posHint int, content string) int {
	if len(content) == 0 {
		return d.FindID(id, posHint, false)
	}
	pos := d.FindID(id, posHint, false)
	d.Split(pos)

	merge := pos > 0 && mergesIntoLeft(d, pos, id)

	runes := []rune(content)
	d.InsertRunes(pos, runes)

	if merge {
		begin, base, _ := d.RunAt(pos - 1)
		d.SetRun(begin, pos+len(runes), base, true)
	} else {
		d.SetRun(pos, pos+len(runes), id, true)
	}
	return pos
}

// mergesIntoLeft reports whether id continues the block whose last
// character currently sits at pos-1 (spec.md §4.D's merge-into-left-block
// case).
func mergesIntoLeft(d *Document, pos int, id ID) bool {
	left, err := d.IDAt(pos - 1)
	if err != nil || left == nil {
		return false
	}
	return BaseEqual(left, id) && Offset(left)+1 == Offset(id)
}

// ApplyDelete applies a remote deletion described by its pre-image
// annotation (spec.md §4.D): each DeletedRun names a run of consecutive
// offsets from a base ID. Characters are located by ID, not position, and
// a character already absent (deleted locally, or by an earlier delivery
// of the same op) is silently skipped — the operation is idempotent by
// construction, never erroring on a partially- or fully-applied delete.
func ApplyDelete(d *Document, runs []DeletedRun) {
	for _, dr := range runs {
		for k := 0; k < dr.Length; k++ {
			target := ReplaceOffset(dr.Base, Offset(dr.Base)+uint16(k))
			if pos, ok := d.Locate(target); ok {
				d.DeleteRunes(pos, pos+1)
			}
		}
	}
}
