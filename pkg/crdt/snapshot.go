package crdt

import "fmt"

// IDRun is one run-length entry of a document's annotation, as carried by
// a `sync` message's id-run-list (spec.md §4.G): Length consecutive
// characters share Base, with EOB set iff this run is a block's tail.
type IDRun struct {
	Length int
	Base   ID
	EOB    bool
}

// DumpIDs encodes d's current annotation as a run-length list, the
// bootstrap half of spec.md §4.G: "carries the full text and a run-length
// list mirroring the sender's annotation."
func DumpIDs(d *Document) []IDRun {
	out := make([]IDRun, 0, len(d.runs))
	for _, r := range d.runs {
		base := make(ID, len(r.base))
		copy(base, r.base)
		out = append(out, IDRun{Length: r.end - r.begin, Base: base, EOB: r.eob})
	}
	return out
}

// LoadIDs rebuilds a Document from content and its run-length annotation,
// the receive half of spec.md §4.G: "the client erases the target buffer,
// inserts content, and paints the annotation." dumpIDs ∘ loadIDs is the
// identity required by spec.md §8's round-trip law.
func LoadIDs(content string, runs []IDRun) (*Document, error) {
	text := []rune(content)
	out := make([]run, 0, len(runs))
	pos := 0
	for _, ir := range runs {
		if ir.Length <= 0 {
			return nil, fmt.Errorf("crdt: snapshot run has non-positive length %d", ir.Length)
		}
		out = append(out, run{begin: pos, end: pos + ir.Length, base: ir.Base, eob: ir.EOB})
		pos += ir.Length
	}
	if pos != len(text) {
		return nil, fmt.Errorf("crdt: snapshot run lengths sum to %d, content has %d characters", pos, len(text))
	}
	return &Document{text: text, runs: out}, nil
}
