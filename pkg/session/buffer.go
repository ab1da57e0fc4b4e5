package session

import (
	"sync"
	"time"

	"github.com/collabtext/scribe/internal/protocol"
	"github.com/collabtext/scribe/pkg/crdt"
)

// Buffer is one shared document: its CRDT replica, the major mode hint
// passed through to hosts, and the set of connections subscribed to it.
// The server holds one Buffer per shared name; a client holds one per
// buffer the server has synced to it.
type Buffer struct {
	mu          sync.Mutex
	name        string
	majorMode   string
	replica     *crdt.Replica
	lastActive  time.Time
	subscribers map[uint16]struct{}
}

// NewBuffer creates an empty, unshared buffer owned by the given site
// (0 on the server, since the server itself never types into a buffer but
// must still assign a site to its replica's identifier generation).
func NewBuffer(name, majorMode string, site uint16) *Buffer {
	return &Buffer{
		name:        name,
		majorMode:   majorMode,
		replica:     crdt.NewReplica(site, nil),
		lastActive:  time.Now(),
		subscribers: make(map[uint16]struct{}),
	}
}

// Name returns the buffer's name.
func (b *Buffer) Name() string { return b.name }

// Touch records edit activity for idle-buffer expiry.
func (b *Buffer) Touch() {
	b.mu.Lock()
	b.lastActive = time.Now()
	b.mu.Unlock()
}

// LastActive reports when the buffer was last touched.
func (b *Buffer) LastActive() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActive
}

// Subscribe adds site to this buffer's subscriber set.
func (b *Buffer) Subscribe(site uint16) {
	b.mu.Lock()
	b.subscribers[site] = struct{}{}
	b.mu.Unlock()
}

// Unsubscribe removes site from this buffer's subscriber set.
func (b *Buffer) Unsubscribe(site uint16) {
	b.mu.Lock()
	delete(b.subscribers, site)
	b.mu.Unlock()
}

// Subscribers returns a snapshot of the currently subscribed sites.
func (b *Buffer) Subscribers() []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint16, 0, len(b.subscribers))
	for s := range b.subscribers {
		out = append(out, s)
	}
	return out
}

// Snapshot returns a sync message body for this buffer's current state.
func (b *Buffer) Snapshot() protocol.SyncMsg {
	doc := b.replica.Document()
	return protocol.SyncMsg{
		Buffer:    b.name,
		MajorMode: b.majorMode,
		Content:   doc.Text(),
		Runs:      protocol.EncodeRuns(crdt.DumpIDs(doc)),
	}
}

// ApplyInsert applies a remote insert op to this buffer's replica.
func (b *Buffer) ApplyInsert(id crdt.ID, posHint int, content string) {
	b.Touch()
	b.replica.ApplyRemoteInsert(id, posHint, content)
}

// ApplyDelete applies a remote delete op to this buffer's replica.
func (b *Buffer) ApplyDelete(posHint int, runs []crdt.DeletedRun) {
	b.Touch()
	b.replica.ApplyRemoteDelete(posHint, runs)
}

// Replica exposes the underlying CRDT replica for cursor/overlay access.
func (b *Buffer) Replica() *crdt.Replica { return b.replica }
