package crdt

// OverlayKey globally and immutably identifies one overlay: the site that
// created it paired with that site's Lamport clock value at creation time
// (spec.md §3, "key: (siteID, lamportClock) — globally unique, immutable").
type OverlayKey struct {
	Site  uint16
	Clock uint32
}

// Overlay is a replicated annotation range together with its anchor
// semantics and property list (spec.md §3 "Overlay"). StartID/EndID are
// the canonical anchors — character IDs, not positions — so the range
// stays correct across intervening inserts/deletes regardless of the
// order overlay-add and edit messages arrive in. Start/End are positions
// resolved from those IDs against one particular document state; they are
// only valid immediately after a call to Resolve and must never be
// persisted or compared across edits.
type Overlay struct {
	Key          OverlayKey
	Species      string
	FrontAdvance bool
	RearAdvance  bool
	StartID      ID
	EndID        ID
	Start        int
	End          int
	Props        map[string]any
}

// Resolve fills in Start/End from StartID/EndID against d's current
// state (spec.md §8 invariant 2: two replicas that apply the same
// overlay-add/insert/delete set in different orders must end up with
// identical overlay tables — anchoring to IDs rather than freezing
// positions at add-time is what makes that true).
func (o *Overlay) Resolve(d *Document) {
	o.Start = DecodeOverlayEndpoint(d, o.StartID, o.FrontAdvance, true)
	o.End = DecodeOverlayEndpoint(d, o.EndID, o.RearAdvance, false)
}

// OverlayTable holds every overlay known to a buffer's replica, keyed by
// its immutable (site, clock) pair.
type OverlayTable struct {
	byKey map[OverlayKey]*Overlay
}

// NewOverlayTable returns an empty overlay table.
func NewOverlayTable() *OverlayTable {
	return &OverlayTable{byKey: make(map[OverlayKey]*Overlay)}
}

// Add inserts a new overlay, or silently no-ops if the key is already
// present — spec.md §4.D: "An overlay-add for a key already present MUST
// be ignored or overwrite benignly."
func (t *OverlayTable) Add(o Overlay) {
	if _, exists := t.byKey[o.Key]; exists {
		return
	}
	cp := o
	if cp.Props == nil {
		cp.Props = make(map[string]any)
	}
	t.byKey[o.Key] = &cp
}

// Move updates an overlay's anchors, silently dropping the request if
// the key is unknown (spec.md §4.D).
func (t *OverlayTable) Move(key OverlayKey, startID, endID ID) {
	o, ok := t.byKey[key]
	if !ok {
		return
	}
	o.StartID, o.EndID = startID, endID
}

// Put replicates a single property onto an existing overlay, silently
// dropping the request if the key is unknown.
func (t *OverlayTable) Put(key OverlayKey, prop string, value any) {
	o, ok := t.byKey[key]
	if !ok {
		return
	}
	o.Props[prop] = value
}

// Remove deletes an overlay. Removing an unknown key is a no-op.
func (t *OverlayTable) Remove(key OverlayKey) {
	delete(t.byKey, key)
}

// Get returns the overlay for key, if present.
func (t *OverlayTable) Get(key OverlayKey) (*Overlay, bool) {
	o, ok := t.byKey[key]
	return o, ok
}

// All returns every overlay in the table, in no particular order — used
// when replaying overlay state to a newly-joined peer.
func (t *OverlayTable) All() []Overlay {
	out := make([]Overlay, 0, len(t.byKey))
	for _, o := range t.byKey {
		out = append(out, *o)
	}
	return out
}

// IsSerializable reports whether value is safe to replicate as an
// overlay-put payload: only JSON-printable scalars and containers thereof
// are allowed (spec.md §3: "all values must be serializable as printable
// data"). A sender must silently skip the put when this returns false
// (spec.md §7).
func IsSerializable(value any) bool {
	switch v := value.(type) {
	case nil, bool, string, float64, int, int32, int64, uint16, uint32:
		return true
	case []any:
		for _, e := range v {
			if !IsSerializable(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range v {
			if !IsSerializable(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// idOrEmpty returns the effective ID at pos, or the empty (zero-length,
// non-nil) ID if pos is past the end of the document — the wire sentinel
// shared with cursor endpoints for "no character here".
func idOrEmpty(d *Document, pos int) ID {
	id, _ := d.IDAt(pos)
	if id == nil {
		return ID{}
	}
	return id
}

// EncodeOverlayEndpoint produces the (hint, id) pair to send for one
// overlay endpoint at pos, given its -advance flag (spec.md §4.E): an
// advancing endpoint anchors to the character at pos; a non-advancing one
// anchors to the character before pos, or the empty ID if pos is 0 (no
// character before the start of the document).
func EncodeOverlayEndpoint(d *Document, pos int, advance bool) (hint int, id ID) {
	if advance {
		return pos, idOrEmpty(d, pos)
	}
	if pos <= 0 {
		return 0, ID{}
	}
	return pos - 1, idOrEmpty(d, pos-1)
}

// DecodeOverlayEndpoint resolves a received overlay endpoint back to a
// document position. isStart distinguishes the two legitimate meanings of
// the empty ID: document start for a start endpoint, document end for an
// end endpoint.
func DecodeOverlayEndpoint(d *Document, id ID, advance, isStart bool) int {
	if len(id) == 0 {
		if isStart {
			return 0
		}
		return d.Len()
	}
	pos := d.FindID(id, 0, true)
	if advance {
		return pos
	}
	return pos + 1
}
