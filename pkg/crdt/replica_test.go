package crdt

import "testing"

// exchangeInserts applies every insert op derived at one replica to
// another, simulating delivery over the network.
func exchangeInserts(dst *Replica, ops []InsertOp) {
	for _, op := range ops {
		dst.ApplyRemoteInsert(op.ID, op.PosHint, op.Content)
	}
}

func exchangeDelete(dst *Replica, op DeleteOp) {
	dst.ApplyRemoteDelete(op.PosHint, op.Runs)
}

func TestConcurrentInsertsAtPositionZeroConverge(t *testing.T) {
	// spec.md §8 scenario 1.
	r1 := NewReplica(1, nil)
	r2 := NewReplica(2, nil)

	ops1 := r1.OnLocalInsert(0, []rune("A"))
	ops2 := r2.OnLocalInsert(0, []rune("B"))

	exchangeInserts(r2, ops1)
	exchangeInserts(r1, ops2)

	if r1.Document().Text() != r2.Document().Text() {
		t.Fatalf("replicas diverged: r1=%q r2=%q", r1.Document().Text(), r2.Document().Text())
	}
	if r1.Document().Text() != "AB" && r1.Document().Text() != "BA" {
		t.Fatalf("unexpected converged text %q", r1.Document().Text())
	}
}

func TestInteriorSplitConverges(t *testing.T) {
	// spec.md §8 scenario 2.
	r1 := NewReplica(1, nil)
	r2 := NewReplica(2, nil)

	ops1 := r1.OnLocalInsert(0, []rune("HELLO"))
	ops2 := r2.OnLocalInsert(0, []rune("!"))

	exchangeInserts(r2, ops1)
	exchangeInserts(r1, ops2)

	t1, t2 := r1.Document().Text(), r2.Document().Text()
	if t1 != t2 {
		t.Fatalf("replicas diverged: r1=%q r2=%q", t1, t2)
	}
	if t1 != "!HELLO" && t1 != "HELLO!" {
		t.Fatalf("unexpected converged text %q", t1)
	}
}

func TestConcurrentDeleteAndInsertConverge(t *testing.T) {
	// spec.md §8 scenario 3: from "HELLO", site 1 deletes "LO" while site
	// 2 concurrently inserts "!" between 'L' and 'O'; both converge to
	// "HEL!".
	seed := NewReplica(1, nil)
	seed.OnLocalInsert(0, []rune("HELLO"))

	snap := DumpIDs(seed.Document())
	loaded1, err := LoadIDs(seed.Document().Text(), snap)
	if err != nil {
		t.Fatalf("LoadIDs: %v", err)
	}
	loaded2, err := LoadIDs(seed.Document().Text(), snap)
	if err != nil {
		t.Fatalf("LoadIDs: %v", err)
	}
	r1 := &Replica{Site: 1, doc: loaded1, cursors: NewCursorTable(), overlays: NewOverlayTable()}
	r2 := &Replica{Site: 2, doc: loaded2, cursors: NewCursorTable(), overlays: NewOverlayTable()}

	delOp := r1.OnLocalDelete(3, 5) // "LO"
	insOps := r2.OnLocalInsert(4, []rune("!"))

	exchangeDelete(r2, delOp)
	exchangeInserts(r1, insOps)

	if r1.Document().Text() != r2.Document().Text() {
		t.Fatalf("replicas diverged: r1=%q r2=%q", r1.Document().Text(), r2.Document().Text())
	}
	if r1.Document().Text() != "HEL!" {
		t.Fatalf("expected convergence to %q, got %q", "HEL!", r1.Document().Text())
	}
}

type recordingHost struct {
	cursors  []CursorState
	overlays []Overlay
}

func (h *recordingHost) ApplyRemoteInsert(beg, end int) {}
func (h *recordingHost) ApplyRemoteDelete(beg, end int) {}
func (h *recordingHost) RenderRemoteCursor(site uint16, state CursorState, cleared bool) {
	h.cursors = append(h.cursors, state)
}
func (h *recordingHost) RenderOverlay(o Overlay, removed bool) {
	h.overlays = append(h.overlays, o)
}

func TestReplicaSuppressesLocalHooksDuringRemoteApply(t *testing.T) {
	host := &recordingHost{}
	r := NewReplica(1, host)
	if r.Suppressed() {
		t.Fatal("replica should not start suppressed")
	}

	id := GenerateBetween(nil, 0, nil, 0, 2)
	r.ApplyRemoteInsert(id, 0, "X")
	if r.Suppressed() {
		t.Fatal("suppression must be cleared once ApplyRemoteInsert returns")
	}

	// A local derive attempted mid-remote-apply would be suppressed; here
	// we just confirm a normal local insert still works afterward.
	ops := r.OnLocalInsert(r.Document().Len(), []rune("Y"))
	if len(ops) != 1 {
		t.Fatalf("expected local insert to work normally after remote apply, got %d ops", len(ops))
	}
}

func TestReplicaOverlayRoundTripThroughApply(t *testing.T) {
	r := NewReplica(1, nil)
	r.OnLocalInsert(0, []rune("HELLO"))

	key := OverlayKey{Site: 1, Clock: r.NextClock()}
	_, startID := EncodeOverlayEndpoint(r.Document(), 0, false)
	_, endID := EncodeOverlayEndpoint(r.Document(), 5, false)
	r.ApplyOverlayAdd(key, "highlight", false, false, startID, endID)

	got, ok := r.Overlays().Get(key)
	if !ok {
		t.Fatal("overlay missing after ApplyOverlayAdd")
	}
	got.Resolve(r.Document())
	if got.Start != 0 || got.End != 5 {
		t.Errorf("overlay span = [%d,%d), want [0,5)", got.Start, got.End)
	}

	r.ApplyOverlayPut(key, "color", "red")
	got, _ = r.Overlays().Get(key)
	if got.Props["color"] != "red" {
		t.Errorf("expected put to set color=red, got %v", got.Props["color"])
	}

	r.ApplyOverlayRemove(key)
	if _, ok := r.Overlays().Get(key); ok {
		t.Error("overlay should be gone after ApplyOverlayRemove")
	}
}

func TestOverlayAnchorsSurviveOutOfOrderInsertDelivery(t *testing.T) {
	// spec.md §8 scenario 5: two replicas apply the same overlay-add and
	// insert in opposite orders and must still converge on identical
	// resolved spans, because the overlay's anchors are IDs, not the int
	// positions that were live when overlay-add first arrived.
	seed := NewReplica(1, nil)
	seed.OnLocalInsert(0, []rune("HELLO"))
	snap := DumpIDs(seed.Document())

	doc1, err := LoadIDs(seed.Document().Text(), snap)
	if err != nil {
		t.Fatalf("LoadIDs: %v", err)
	}
	doc2, err := LoadIDs(seed.Document().Text(), snap)
	if err != nil {
		t.Fatalf("LoadIDs: %v", err)
	}
	r1 := NewReplicaFromDocument(1, nil, doc1)
	r2 := NewReplicaFromDocument(2, nil, doc2)

	key := OverlayKey{Site: 3, Clock: 1}
	_, startID := EncodeOverlayEndpoint(r1.Document(), 0, false)
	_, endID := EncodeOverlayEndpoint(r1.Document(), 5, false)

	xID := GenerateBetween(nil, 0, firstIDFor(r1.Document()), Offset(firstIDFor(r1.Document())), 9)

	// r1: overlay-add first, then the remote insert.
	r1.ApplyOverlayAdd(key, "highlight", false, false, startID, endID)
	r1.ApplyRemoteInsert(xID, 0, "X")

	// r2: the remote insert first, then the overlay-add.
	r2.ApplyRemoteInsert(xID, 0, "X")
	r2.ApplyOverlayAdd(key, "highlight", false, false, startID, endID)

	o1, ok := r1.Overlays().Get(key)
	if !ok {
		t.Fatal("overlay missing on r1")
	}
	o2, ok := r2.Overlays().Get(key)
	if !ok {
		t.Fatal("overlay missing on r2")
	}
	o1.Resolve(r1.Document())
	o2.Resolve(r2.Document())

	if o1.Start != o2.Start || o1.End != o2.End {
		t.Fatalf("overlay tables diverged: r1=[%d,%d) r2=[%d,%d)", o1.Start, o1.End, o2.Start, o2.End)
	}
	if o1.Start != 1 || o1.End != 6 {
		t.Errorf("overlay span = [%d,%d), want [1,6)", o1.Start, o1.End)
	}
}
