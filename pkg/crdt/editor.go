package crdt

// MaxOffset is the most characters a single block may hold before a fresh
// block must be started (spec.md §4.C step 4, "beg + MAX"); a block's
// offsets therefore run from 0 to at most MaxOffset-1.
const MaxOffset = MaxDigit

// InsertOp is the wire-level description of one contiguous run inserted
// locally, ready to be broadcast as an `insert` message.
type InsertOp struct {
	ID      ID
	PosHint int
	Content string
}

// DeletedRun is one (length, base) pair of the pre-image annotation
// captured by a local delete, in the order the spec.md §6 `delete`
// message body expects.
type DeletedRun struct {
	Length int
	Base   ID
}

// DeleteOp is the wire-level description of a local delete, ready to be
// broadcast as a `delete` message.
type DeleteOp struct {
	PosHint int
	Runs    []DeletedRun
}

// neighbor captures a block boundary's base ID and effective offset.
type neighbor struct {
	id     ID
	offset uint16
	ok     bool
}

func leftNeighbor(d *Document, pos int) neighbor {
	if pos <= 0 {
		return neighbor{}
	}
	id, _ := d.IDAt(pos - 1)
	return neighbor{id: id, offset: Offset(id), ok: true}
}

func rightNeighbor(d *Document, pos int) neighbor {
	if pos >= d.Len() {
		return neighbor{}
	}
	id, _ := d.IDAt(pos)
	return neighbor{id: id, offset: Offset(id), ok: true}
}

// DeriveInsert converts a local insertion of s at position beg into one or
// more `insert` wire operations, implementing spec.md §4.C: a split guard,
// an optional merge into the left neighbor's block when it belongs to this
// site and is still open (end-of-block), and fresh blocks for whatever
// doesn't fit in the merge.
//
// d must still hold the pre-image (s not yet present); DeriveInsert splices
// s into d itself, after first splitting at beg if it falls strictly
// inside an existing block — so the splice never straddles a run, and a
// merge is only attempted when beg was already the true end of an open
// block rather than an artifact of stale run boundaries.
func DeriveInsert(d *Document, site uint16, beg int, s []rune) []InsertOp {
	if len(s) == 0 {
		return nil
	}

	d.Split(beg)
	left := leftNeighbor(d, beg)
	end := beg + len(s)
	d.InsertRunes(beg, s)

	// Split guard: if the character immediately after the inserted range
	// shares a base with the left neighbor, split there first so the
	// insertion never straddles a block it doesn't own.
	if end < d.Len() && left.ok {
		if afterID, _ := d.IDAt(end); afterID != nil && BaseEqual(afterID, left.id) {
			d.Split(end)
			left = leftNeighbor(d, beg)
		}
	}

	var ops []InsertOp
	remaining := s
	pos := beg

	// Merge path: extend the left block if it's ours and still open. The
	// extended span is folded into the existing run (same base, new end)
	// rather than added as a second run of the same base, so the block
	// stays a single maximal run per spec.md §3 invariant 3.
	if pos > 0 && left.ok && Site(left.id) == site && d.EOBAt(pos-1) {
		room := int(MaxOffset) - int(left.offset) - 1
		if room > 0 {
			n := len(remaining)
			if n > room {
				n = room
			}
			mergeEnd := pos + n
			begin, base, _ := d.RunAt(pos - 1)
			d.SetRun(begin, mergeEnd, base, true)
			newID := ReplaceOffset(left.id, left.offset+1)
			ops = append(ops, InsertOp{ID: newID, PosHint: pos, Content: string(remaining[:n])})
			pos = mergeEnd
			remaining = remaining[n:]
		}
	}

	// Fresh-block path: whatever didn't fit in the merge gets new blocks.
	for len(remaining) > 0 {
		blockEnd := pos + len(remaining)
		if blockEnd-pos > int(MaxOffset) {
			blockEnd = pos + int(MaxOffset)
		}
		var highID ID
		var highOffset uint16
		if right := rightNeighbor(d, end); right.ok {
			highID, highOffset = right.id, right.offset
		}
		var lowID ID
		var lowOffset uint16
		if pos > 0 {
			if lp := leftNeighbor(d, pos); lp.ok {
				lowID, lowOffset = lp.id, lp.offset
			}
		}
		newID := GenerateBetween(lowID, lowOffset, highID, highOffset, site)
		n := blockEnd - pos
		d.SetRun(pos, blockEnd, newID, true)
		ops = append(ops, InsertOp{ID: newID, PosHint: pos, Content: string(remaining[:n])})
		pos = blockEnd
		remaining = remaining[n:]
	}

	return ops
}

// DeriveDelete converts a local deletion of the range [beg,end) into a
// single `delete` wire operation, implementing spec.md §4.C: split guards
// on both edges, then a run-length capture of the pre-image annotation.
//
// d must still hold the pre-image (the deleted text not yet removed);
// DeriveDelete removes it from d as its final step.
func DeriveDelete(d *Document, beg, end int) DeleteOp {
	if beg == end {
		return DeleteOp{PosHint: beg}
	}

	// Split guards: never let the deleted range straddle into a block
	// that extends past either edge.
	d.Split(beg)
	d.Split(end)

	runs := d.RunsInRange(beg, end)
	pairs := make([]DeletedRun, 0, len(runs))
	for _, r := range runs {
		pairs = append(pairs, DeletedRun{Length: r.end - r.begin, Base: r.base})
	}

	d.DeleteRunes(beg, end)

	return DeleteOp{PosHint: beg, Runs: pairs}
}
