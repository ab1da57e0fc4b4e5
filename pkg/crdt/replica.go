package crdt

// Host is the boundary the core calls out through to mutate user-visible
// state (spec.md §6, "the core calls these on the host"). A host is
// terminal/UI rendering, a test harness, or any other external collaborator;
// the core never assumes one exists beyond this interface.
type Host interface {
	ApplyRemoteInsert(beg, end int)
	ApplyRemoteDelete(beg, end int)
	RenderRemoteCursor(site uint16, state CursorState, cleared bool)
	RenderOverlay(o Overlay, removed bool)
}

// Replica is one participant's full local state for a single buffer: the
// document, the remote cursor and overlay tables, and the local site's own
// identity and Lamport clock. It is the glue object spec.md §3's
// "Ownership" paragraph describes: "A replica owns its document, ID
// annotations, cursor table, and overlay table."
//
// Replica is not safe for concurrent use on its own; spec.md §5 assumes a
// single logical thread per buffer, which callers provide by serializing
// access (the session layer does this with a per-buffer mutex).
type Replica struct {
	Site  uint16
	doc   *Document
	clock uint32

	cursors  *CursorTable
	overlays *OverlayTable
	host     Host

	suppressLocalHooks bool
	localCursor        LocalCursorTracker
}

// NewReplica returns an empty replica for site, reporting host mutations
// to host (which may be nil, e.g. in tests that only check document
// state).
func NewReplica(site uint16, host Host) *Replica {
	return &Replica{
		Site:     site,
		doc:      NewDocument(),
		cursors:  NewCursorTable(),
		overlays: NewOverlayTable(),
		host:     host,
	}
}

// NewReplicaFromDocument returns a replica for site backed by an
// already-constructed document, used when bootstrapping from a sync
// message's decoded snapshot (spec.md §4.G) rather than starting empty.
func NewReplicaFromDocument(site uint16, host Host, doc *Document) *Replica {
	return &Replica{
		Site:     site,
		doc:      doc,
		cursors:  NewCursorTable(),
		overlays: NewOverlayTable(),
		host:     host,
	}
}

// Document returns the replica's underlying document.
func (r *Replica) Document() *Document { return r.doc }

// Cursors returns the replica's remote cursor table.
func (r *Replica) Cursors() *CursorTable { return r.cursors }

// Overlays returns the replica's overlay table.
func (r *Replica) Overlays() *OverlayTable { return r.overlays }

// NextClock advances and returns this replica's Lamport clock, for keying
// a freshly created local overlay (spec.md §4.E: "allocates a fresh key
// (localSite, localClock++)").
func (r *Replica) NextClock() uint32 {
	r.clock++
	return r.clock
}

// Suppressed reports whether local-change hooks are currently disabled —
// true while the replica is applying a remote operation (spec.md §5,
// "local-change hooks MUST be suppressed"). A host integration that routes
// its own change notifications back into OnLocalInsert/OnLocalDelete
// should check this first and no-op if true.
func (r *Replica) Suppressed() bool { return r.suppressLocalHooks }

// OnLocalInsert derives the wire operations for a local insertion of s at
// beg, mutating the document in place (spec.md §4.C). Returns nil without
// effect if called while remote-apply is in progress.
func (r *Replica) OnLocalInsert(beg int, s []rune) []InsertOp {
	if r.suppressLocalHooks || len(s) == 0 {
		return nil
	}
	return DeriveInsert(r.doc, r.Site, beg, s)
}

// OnLocalDelete derives the wire operation for a local deletion of
// [beg,end), mutating the document in place (spec.md §4.C).
func (r *Replica) OnLocalDelete(beg, end int) DeleteOp {
	if r.suppressLocalHooks || beg == end {
		return DeleteOp{}
	}
	return DeriveDelete(r.doc, beg, end)
}

// OnLocalCursor computes this replica's own current cursor state and
// reports whether it differs from the last tick — spec.md §4.E: "Local
// cursor is re-published on every post-command tick only when it differs
// from the previous tick."
func (r *Replica) OnLocalCursor(point int, mark int, hasMark bool) (CursorState, bool) {
	cur := CursorState{Point: point, Mark: mark, HasMark: hasMark}
	return cur, r.localCursor.Changed(cur)
}

// withRemoteApply runs fn with local-change hooks suppressed, guaranteeing
// they are re-enabled even if fn panics.
func (r *Replica) withRemoteApply(fn func()) {
	r.suppressLocalHooks = true
	defer func() { r.suppressLocalHooks = false }()
	fn()
}

// ApplyRemoteInsert applies a peer's insert operation (spec.md §4.D) and
// notifies the host of the resulting range.
func (r *Replica) ApplyRemoteInsert(id ID, posHint int, content string) {
	if len(content) == 0 {
		return
	}
	var pos int
	r.withRemoteApply(func() {
		pos = ApplyInsert(r.doc, id, posHint, content)
	})
	if r.host != nil {
		r.host.ApplyRemoteInsert(pos, pos+len([]rune(content)))
	}
}

// ApplyRemoteDelete applies a peer's delete operation (spec.md §4.D).
// Characters are located and removed by ID one at a time, which makes the
// operation idempotent without assuming the deleted run is still
// contiguous (a concurrent edit may have split it); the host is notified
// once per character actually removed, each with its true position at the
// moment of removal.
func (r *Replica) ApplyRemoteDelete(posHint int, runs []DeletedRun) {
	r.withRemoteApply(func() {
		for _, dr := range runs {
			for k := 0; k < dr.Length; k++ {
				target := ReplaceOffset(dr.Base, Offset(dr.Base)+uint16(k))
				pos, ok := r.doc.Locate(target)
				if !ok {
					continue
				}
				r.doc.DeleteRunes(pos, pos+1)
				if r.host != nil {
					r.host.ApplyRemoteDelete(pos, pos+1)
				}
			}
		}
	})
}

// ApplyRemoteCursor applies a peer's cursor update (spec.md §4.E). clear
// reports a cleared cursor (site disconnected); pointID/markID resolve via
// ResolveCursorID, with markID == nil meaning no mark is set.
func (r *Replica) ApplyRemoteCursor(site uint16, pointID ID, markID ID, clear bool) {
	if clear {
		r.cursors.Clear(site)
		if r.host != nil {
			r.host.RenderRemoteCursor(site, CursorState{}, true)
		}
		return
	}
	state := CursorState{Point: ResolveCursorID(r.doc, pointID)}
	if markID != nil {
		state.Mark = ResolveCursorID(r.doc, markID)
		state.HasMark = true
	}
	r.cursors.Set(site, state)
	if r.host != nil {
		r.host.RenderRemoteCursor(site, state, false)
	}
}

// ApplyOverlayAdd applies a peer's overlay-add (spec.md §4.E/§4.D,
// idempotent on a repeated key). The endpoints are stored as the IDs they
// arrived as, not resolved to positions, so the range stays correct no
// matter what edits land before or after this call (spec.md §8 invariant 2).
func (r *Replica) ApplyOverlayAdd(key OverlayKey, species string, frontAdv, rearAdv bool, startID, endID ID) {
	o := Overlay{
		Key:          key,
		Species:      species,
		FrontAdvance: frontAdv,
		RearAdvance:  rearAdv,
		StartID:      startID,
		EndID:        endID,
	}
	r.overlays.Add(o)
	r.notifyOverlay(key, false)
}

// ApplyOverlayMove applies a peer's overlay-move, silently dropped if key
// is unknown (spec.md §4.D).
func (r *Replica) ApplyOverlayMove(key OverlayKey, startID, endID ID) {
	if _, ok := r.overlays.Get(key); !ok {
		return
	}
	r.overlays.Move(key, startID, endID)
	r.notifyOverlay(key, false)
}

// ApplyOverlayPut applies a peer's overlay-put, silently dropped if key is
// unknown or value is not serializable.
func (r *Replica) ApplyOverlayPut(key OverlayKey, prop string, value any) {
	if !IsSerializable(value) {
		return
	}
	r.overlays.Put(key, prop, value)
	r.notifyOverlay(key, false)
}

// ApplyOverlayRemove applies a peer's overlay-remove.
func (r *Replica) ApplyOverlayRemove(key OverlayKey) {
	o, ok := r.overlays.Get(key)
	if !ok {
		return
	}
	cp := *o
	cp.Resolve(r.doc)
	r.overlays.Remove(key)
	if r.host != nil {
		r.host.RenderOverlay(cp, true)
	}
}

// notifyOverlay resolves key's current anchors against the live document
// and reports the result to the host, if any.
func (r *Replica) notifyOverlay(key OverlayKey, removed bool) {
	if r.host == nil {
		return
	}
	got, ok := r.overlays.Get(key)
	if !ok {
		return
	}
	resolved := *got
	resolved.Resolve(r.doc)
	r.host.RenderOverlay(resolved, removed)
}

// ResolvedOverlays returns every overlay in the table with Start/End
// resolved against the document's current state — used when replaying
// overlay state to a newly-joined peer (spec.md §4.E).
func (r *Replica) ResolvedOverlays() []Overlay {
	all := r.overlays.All()
	for i := range all {
		all[i].Resolve(r.doc)
	}
	return all
}
