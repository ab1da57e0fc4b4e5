// Package session implements component F of the replication protocol:
// connection framing, the authentication handshake, the sync/greeting
// sequence, and broadcast/rebroadcast routing across a shared-buffer hub.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/collabtext/scribe/internal/protocol"
	"github.com/collabtext/scribe/pkg/database"
	"github.com/collabtext/scribe/pkg/logger"
)

// ErrSiteExhausted is returned when the server has handed out every site
// ID up to the 16-bit ceiling (spec.md §7 "site-ID exhaustion").
var ErrSiteExhausted = fmt.Errorf("session: site ID space exhausted")

// focusEntry records which buffer a site last reported as focused, and
// its presentation details for contact replay.
type focusEntry struct {
	displayName string
	buffer      string
}

// Hub is the server role of spec.md §4.F: it owns the site-ID allocator,
// the table of shared buffers, the optional session password, and routes
// broadcasts to every connected client.
type Hub struct {
	mu sync.Mutex

	sessionName string
	password    string // empty means no authentication required

	nextSite    uint16
	siteUsed    bool // never read: site 0 (reserved, spec.md §3) is avoided by nextSite starting at 1 and allocateSite stopping when it wraps to 0
	connections map[uint16]*Connection
	focus       map[uint16]focusEntry

	buffers map[string]*Buffer

	broadcastBufferSize int
	db                   *database.Database
}

// NewHub creates a server-role hub for one session.
func NewHub(sessionName, password string, broadcastBufferSize int, db *database.Database) *Hub {
	return &Hub{
		sessionName:          sessionName,
		password:             password,
		nextSite:             1,
		connections:          make(map[uint16]*Connection),
		focus:                make(map[uint16]focusEntry),
		buffers:              make(map[string]*Buffer),
		broadcastBufferSize:  broadcastBufferSize,
		db:                   db,
	}
}

// Password reports the session password, and whether one is configured.
func (h *Hub) Password() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.password, h.password != ""
}

// allocateSite hands out the next site ID, or ErrSiteExhausted once the
// 16-bit space (minus the reserved server site 0) is used up.
func (h *Hub) allocateSite() (uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.nextSite == 0 {
		return 0, ErrSiteExhausted
	}
	site := h.nextSite
	h.nextSite++
	return site, nil
}

// register adds a live connection to the hub's routing table and records
// its join in the audit log.
func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.connections[c.site] = c
	h.mu.Unlock()

	if h.db != nil {
		if err := h.db.RecordJoin(h.sessionName, c.site, c.displayName); err != nil {
			logger.Error("session: audit log join failed: %v", err)
		}
	}
}

// unregister removes a connection, clears its focus record, and drops it
// from every buffer's subscriber set.
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	delete(h.connections, c.site)
	delete(h.focus, c.site)
	for _, b := range h.buffers {
		b.Unsubscribe(c.site)
	}
	h.mu.Unlock()

	if h.db != nil {
		if err := h.db.RecordLeave(h.sessionName, c.site); err != nil {
			logger.Error("session: audit log leave failed: %v", err)
		}
	}
}

// ShareBuffer creates and registers a new shared buffer. Only the server
// may share a buffer (spec.md §6 CLI-equivalent operations).
func (h *Hub) ShareBuffer(name, majorMode string) *Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.buffers[name]; ok {
		return b
	}
	b := NewBuffer(name, majorMode, protocol.ServerSite)
	h.buffers[name] = b

	if h.db != nil {
		if err := h.db.RecordShare(h.sessionName, name); err != nil {
			logger.Error("session: audit log share failed: %v", err)
		}
	}
	return b
}

// StopShareBuffer removes a buffer and broadcasts a desync message to
// every client, per spec.md §9 Open Question 1 (desync is the chosen
// stop-sharing signal; sync is the implicit start-sharing event).
func (h *Hub) StopShareBuffer(name string) {
	h.mu.Lock()
	_, ok := h.buffers[name]
	delete(h.buffers, name)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.Broadcast(protocol.ServerSite, protocol.Msg{Desync: &protocol.DesyncMsg{Buffer: name}})

	if h.db != nil {
		if err := h.db.RecordUnshare(h.sessionName, name); err != nil {
			logger.Error("session: audit log unshare failed: %v", err)
		}
	}
}

// Buffer returns a shared buffer by name, if one exists.
func (h *Hub) Buffer(name string) (*Buffer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buffers[name]
	return b, ok
}

// Buffers returns a snapshot of every currently shared buffer.
func (h *Hub) Buffers() []*Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Buffer, 0, len(h.buffers))
	for _, b := range h.buffers {
		out = append(out, b)
	}
	return out
}

// SetFocus records that site now has buffer focused, for contact replay
// to later-joining clients (SPEC_FULL.md §9 presence supplement).
func (h *Hub) SetFocus(site uint16, displayName, buffer string) {
	h.mu.Lock()
	h.focus[site] = focusEntry{displayName: displayName, buffer: buffer}
	h.mu.Unlock()
}

// Contacts returns a (siteID, displayName) snapshot of every connected
// site, for replay in a newcomer's greeting.
func (h *Hub) Contacts() map[uint16]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[uint16]string, len(h.focus))
	for site, f := range h.focus {
		out[site] = f.displayName
	}
	return out
}

// Broadcast delivers msg to every connected client except except (the
// originating site), implementing spec.md §4.F's rebroadcast rule.
func (h *Hub) Broadcast(except uint16, msg protocol.Msg) {
	h.mu.Lock()
	targets := make([]*Connection, 0, len(h.connections))
	for site, c := range h.connections {
		if site == except {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// Stop disconnects every client and drops all buffers, implementing
// spec.md §6 stopSession().
func (h *Hub) Stop() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.buffers = make(map[string]*Buffer)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// StartCleaner runs the idle-buffer expiry loop of SPEC_FULL.md §9,
// generalized from the teacher's per-document cleanup in server.go.
func (h *Hub) StartCleaner(stop <-chan struct{}, expiry time.Duration, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.expireIdleBuffers(expiry)
		}
	}
}

func (h *Hub) expireIdleBuffers(expiry time.Duration) {
	now := time.Now()
	h.mu.Lock()
	var expired []string
	for name, b := range h.buffers {
		if now.Sub(b.LastActive()) > expiry {
			expired = append(expired, name)
		}
	}
	h.mu.Unlock()

	for _, name := range expired {
		logger.Info("session: expiring idle buffer %q", name)
		h.StopShareBuffer(name)
	}
}
