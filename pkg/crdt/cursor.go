package crdt

// CursorState is one site's point and optional mark, resolved to document
// positions. It is the in-memory counterpart of a `cursor` wire message's
// body once its IDs have been resolved via Document.FindID.
type CursorState struct {
	Point   int
	Mark    int
	HasMark bool
}

// CursorTable holds the last-known cursor state of every remote site in a
// single buffer, as described by spec.md §3 ("the replica holds
// (point, mark?) positions"). It is not safe for concurrent use; callers
// serialize access the way they serialize all other replica mutation.
type CursorTable struct {
	bySite map[uint16]CursorState
}

// NewCursorTable returns an empty cursor table.
func NewCursorTable() *CursorTable {
	return &CursorTable{bySite: make(map[uint16]CursorState)}
}

// Set records site's cursor state, replacing any previous value.
func (t *CursorTable) Set(site uint16, c CursorState) {
	t.bySite[site] = c
}

// Get returns site's last-known cursor state, if any.
func (t *CursorTable) Get(site uint16) (CursorState, bool) {
	c, ok := t.bySite[site]
	return c, ok
}

// Clear removes site's cursor, used when a connection drops (spec.md §4.F
// "the server synthesizes a clear-cursor for that site").
func (t *CursorTable) Clear(site uint16) {
	delete(t.bySite, site)
}

// Sites returns every site with a recorded cursor, for replaying cursor
// state to a newly-joined peer during the greeting sequence.
func (t *CursorTable) Sites() []uint16 {
	sites := make([]uint16, 0, len(t.bySite))
	for s := range t.bySite {
		sites = append(sites, s)
	}
	return sites
}

// ResolveCursorID turns a wire-level cursor endpoint ID into a document
// position: the empty (zero-length, non-nil) ID means end-of-document; any
// other ID resolves to the position immediately before the character it
// names, matching the "point sits before its named character" convention a
// host editor uses to render a cursor. A nil id has no position — callers
// must special-case it as "clear" before calling this.
func ResolveCursorID(d *Document, id ID) int {
	if len(id) == 0 {
		return d.Len()
	}
	return d.FindID(id, 0, true)
}

// CursorIDAt is the inverse of ResolveCursorID: it produces the wire-level
// ID for the character currently at pos, or the empty ID if pos is at the
// end of the document.
func CursorIDAt(d *Document, pos int) ID {
	id, _ := d.IDAt(pos)
	if id == nil {
		return ID{}
	}
	return id
}

// LocalCursorTracker suppresses republishing a local cursor that hasn't
// moved since the last post-command tick (spec.md §4.E: "re-published on
// every post-command tick only when it differs from the previous tick").
type LocalCursorTracker struct {
	last CursorState
	set  bool
}

// Changed reports whether cur differs from the last state observed, and
// records cur as the new baseline regardless of the outcome.
func (t *LocalCursorTracker) Changed(cur CursorState) bool {
	changed := !t.set || cur != t.last
	t.last = cur
	t.set = true
	return changed
}
