package crdt

import "fmt"

// run is a maximal span of the document sharing one base ID, with
// consecutive effective offsets starting at base's own OFFSET digit.
type run struct {
	begin int // inclusive, in rune positions
	end   int // exclusive
	base  ID
	eob   bool // end-of-block: true only for the block's last character
}

// effectiveID returns the ID of the character at document position pos,
// which must fall within r.
func (r run) effectiveID(pos int) ID {
	return ReplaceOffset(r.base, Offset(r.base)+uint16(pos-r.begin))
}

// Document is the Logoot-Split block store: a flat rune buffer with a
// parallel, position-sorted list of run annotations. It is neither a piece
// table nor a gap buffer + interval tree (spec.md §9 design note): the text
// is one flat slice, and runs are naturally contiguous and far fewer than
// characters.
type Document struct {
	text []rune
	runs []run
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Len returns the number of characters in the document.
func (d *Document) Len() int { return len(d.text) }

// Text returns the document's current text.
func (d *Document) Text() string { return string(d.text) }

// runIndexAt returns the index into d.runs covering position pos. Callers
// must ensure 0 <= pos < len(d.text).
func (d *Document) runIndexAt(pos int) int {
	lo, hi := 0, len(d.runs)
	for lo < hi {
		mid := (lo + hi) / 2
		if d.runs[mid].end <= pos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// IDAt returns the effective ID of the character at pos. Returns nil, nil
// if pos == Len() (meaning "past end"); returns an error if pos is out of
// [0, Len()] range.
func (d *Document) IDAt(pos int) (ID, error) {
	if pos < 0 || pos > len(d.text) {
		return nil, fmt.Errorf("crdt: position %d out of range [0,%d]", pos, len(d.text))
	}
	if pos == len(d.text) {
		return nil, nil
	}
	r := d.runs[d.runIndexAt(pos)]
	return r.effectiveID(pos), nil
}

// EOBAt reports whether the character at pos is the last character of its
// block (end-of-block flag). pos must be a valid in-range position.
func (d *Document) EOBAt(pos int) bool {
	r := d.runs[d.runIndexAt(pos)]
	return r.eob && pos == r.end-1
}

// RunAt returns the begin position, base ID, and end-of-block flag of the
// run covering pos, so callers can extend it in place (e.g. a local
// insert merging into an open block) rather than fragment it into two
// runs of the same base.
func (d *Document) RunAt(pos int) (begin int, base ID, eob bool) {
	r := d.runs[d.runIndexAt(pos)]
	return r.begin, r.base, r.eob
}

// FindID locates the position of the character whose effective ID equals
// id, or — for an id that matches nothing (a freshly generated remote
// insert's base) — the position that id would occupy if it were a
// character in the document. hint is accepted for wire compatibility with
// spec.md's protocol (a position hint is never required for correctness,
// per spec.md's glossary) but unused here: since effective IDs are
// strictly increasing with position (invariant 1), a plain binary search
// already finds the target in O(log n) without needing to seed from a
// hint.
//
// If before is false, the first position after a match is returned (or,
// if absent, the insertion position); if before is true, the position
// immediately before a match (or, if absent, that same insertion
// position).
//
// A fresh id generated between two sibling characters of the same block
// (spec.md §4.D's central case, applying a remote insert that splits a
// block it doesn't own) never equals any stored run base, so the search
// falls through to a second binary search across that run's own
// character positions via their effective IDs — this is what locates the
// split point without needing the block pre-split on the sending side.
func (d *Document) FindID(id ID, hint int, before bool) int {
	_ = hint
	if len(d.runs) == 0 {
		return 0
	}

	// lo becomes the index of the first run whose base is > id.
	lo, hi := 0, len(d.runs)
	for lo < hi {
		mid := (lo + hi) / 2
		if Less(id, d.runs[mid].base) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	idx := lo - 1
	if idx < 0 {
		return 0
	}

	r := d.runs[idx]
	if d.runBaseMatches(idx, id) {
		delta := int(Offset(id)) - int(Offset(r.base))
		pos := r.begin + delta
		if !before {
			pos++
		}
		if pos < r.begin {
			pos = r.begin
		}
		if pos > r.end {
			pos = r.end
		}
		return pos
	}

	// id is not an existing character: it falls somewhere in run idx's
	// span (the outer search already guarantees id < the next run's
	// base), possibly interior to it. Binary search the run's own
	// positions by effective ID to find exactly where.
	lo2, hi2 := r.begin, r.end
	for lo2 < hi2 {
		mid2 := (lo2 + hi2) / 2
		if Less(id, r.effectiveID(mid2)) {
			hi2 = mid2
		} else {
			lo2 = mid2 + 1
		}
	}
	return lo2
}

// Locate returns the exact position of the character whose effective ID is
// id, and false if no such character currently exists in the document —
// distinct from FindID, which always returns a position (an insertion
// point, for an id matching nothing). Used by ApplyDelete to test whether
// a previously-deleted or not-yet-seen character is present before acting
// on it, which is what makes delete application idempotent.
func (d *Document) Locate(id ID) (int, bool) {
	if len(d.runs) == 0 {
		return 0, false
	}
	lo, hi := 0, len(d.runs)
	for lo < hi {
		mid := (lo + hi) / 2
		if Less(id, d.runs[mid].base) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	idx := lo - 1
	if idx < 0 {
		return 0, false
	}
	r := d.runs[idx]
	if !d.runBaseMatches(idx, id) {
		return 0, false
	}
	delta := int(Offset(id)) - int(Offset(r.base))
	if delta < 0 || delta >= r.end-r.begin {
		return 0, false
	}
	return r.begin + delta, true
}

// runBaseMatches reports whether id's base matches run i's base and its
// offset falls within that run's range (including one-past-the-end, which
// is a valid merge point for an about-to-be-appended character).
func (d *Document) runBaseMatches(i int, id ID) bool {
	r := d.runs[i]
	if !BaseEqual(r.base, id) {
		return false
	}
	delta := int(Offset(id)) - int(Offset(r.base))
	return delta >= 0 && delta <= r.end-r.begin
}

// SetRun overwrites the annotation of [beg,end) with (base, eob),
// replacing any existing runs that overlap that range (in full or in
// part) with a single new run entry.
func (d *Document) SetRun(beg, end int, base ID, eob bool) {
	if beg >= end {
		return
	}
	newRun := run{begin: beg, end: end, base: base, eob: eob}

	var out []run
	for _, r := range d.runs {
		if r.end <= beg || r.begin >= end {
			out = append(out, r)
			continue
		}
		if r.begin < beg {
			out = append(out, run{begin: r.begin, end: beg, base: r.base, eob: r.eob})
		}
		if r.end > end {
			out = append(out, run{begin: end, end: r.end, base: clampBase(r, end), eob: r.eob})
		}
	}
	out = append(out, newRun)
	d.runs = sortedRuns(out)
}

// clampBase recomputes the base ID for the suffix of r that begins at
// newBegin, preserving effective-ID continuity.
func clampBase(r run, newBegin int) ID {
	return ReplaceOffset(r.base, Offset(r.base)+uint16(newBegin-r.begin))
}

func sortedRuns(runs []run) []run {
	// Insertion sort: the list is almost-sorted after SetRun's localized
	// rewrite, and document run counts stay small relative to text length.
	for i := 1; i < len(runs); i++ {
		j := i
		for j > 0 && runs[j-1].begin > runs[j].begin {
			runs[j-1], runs[j] = runs[j], runs[j-1]
			j--
		}
	}
	return runs
}

// Split rewrites the annotation at pos, if pos is interior to a block, so
// that [pos, runEnd) becomes its own run with eob cleared on the left
// remainder — preventing a later local append from merging across a
// remote-inserted split (spec.md §8 invariant 4, "no ghost merging").
func (d *Document) Split(pos int) {
	if pos <= 0 || pos >= len(d.text) {
		return
	}
	i := d.runIndexAt(pos)
	r := d.runs[i]
	if pos == r.begin {
		return // already a run boundary, nothing interior to split
	}
	leftEOB := false
	rightBase := clampBase(r, pos)
	d.SetRun(pos, r.end, rightBase, r.eob)
	d.SetRun(r.begin, pos, r.base, leftEOB)
}

// InsertRunes splices s into the rune buffer at pos without touching run
// annotations (callers must annotate the new range via SetRun).
func (d *Document) InsertRunes(pos int, s []rune) {
	next := make([]rune, 0, len(d.text)+len(s))
	next = append(next, d.text[:pos]...)
	next = append(next, s...)
	next = append(next, d.text[pos:]...)
	d.text = next
	for i := range d.runs {
		if d.runs[i].begin >= pos {
			d.runs[i].begin += len(s)
			d.runs[i].end += len(s)
		}
	}
}

// DeleteRunes removes the rune range [beg,end) from the buffer and drops
// any run annotation fully inside it, shrinking runs that straddle the
// boundary.
func (d *Document) DeleteRunes(beg, end int) {
	if beg >= end {
		return
	}
	n := end - beg
	d.text = append(d.text[:beg:beg], d.text[end:]...)

	var out []run
	for _, r := range d.runs {
		switch {
		case r.end <= beg:
			out = append(out, r)
			continue
		case r.begin >= end:
			out = append(out, run{begin: r.begin - n, end: r.end - n, base: r.base, eob: r.eob})
			continue
		}

		// r overlaps [beg,end): the overlapping slice is deleted outright,
		// but the left and right remainders (if any) survive as
		// independent runs — they must NOT be merged into one, since the
		// deleted interior breaks offset contiguity between them (the
		// right remainder keeps its own, larger, original offsets).
		if r.begin < beg {
			out = append(out, run{begin: r.begin, end: beg, base: r.base, eob: false})
		}
		if r.end > end {
			newBegin := end - n
			out = append(out, run{begin: newBegin, end: r.end - n, base: clampBase(r, end), eob: r.eob})
		}
	}
	d.runs = out
}

// RunsInRange returns the run annotations overlapping [beg,end), clipped
// to that range, in order — used by the local edit deriver to capture the
// pre-image annotation of a deletion.
func (d *Document) RunsInRange(beg, end int) []run {
	var out []run
	for _, r := range d.runs {
		if r.end <= beg || r.begin >= end {
			continue
		}
		lo, hi := r.begin, r.end
		base := r.base
		if lo < beg {
			base = clampBase(r, beg)
			lo = beg
		}
		if hi > end {
			hi = end
		}
		out = append(out, run{begin: lo, end: hi, base: base, eob: r.eob})
	}
	return out
}
