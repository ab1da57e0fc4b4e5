package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/collabtext/scribe/internal/protocol"
	"github.com/collabtext/scribe/pkg/crdt"
)

// testHTTPServer starts an httptest server fronting one open session with
// one shared buffer, mirroring the teacher's server_test.go harness shape.
func testHTTPServer(t *testing.T, password string) (*httptest.Server, *Hub) {
	t.Helper()

	manager := NewSessionManager()
	hub, err := manager.Create("demo", password, 64, nil)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	hub.ShareBuffer("scratch", "text")

	srv := NewHTTPServer(manager, 5*time.Second, 5*time.Second)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, hub
}

type recordingHost struct {
	t *testing.T
}

func (h *recordingHost) ApplyRemoteInsert(beg, end int)                              {}
func (h *recordingHost) ApplyRemoteDelete(beg, end int)                              {}
func (h *recordingHost) RenderRemoteCursor(site uint16, st crdt.CursorState, c bool)  {}
func (h *recordingHost) RenderOverlay(o crdt.Overlay, removed bool)                   {}

func connectClient(t *testing.T, ts *httptest.Server, name, password string) *Client {
	t.Helper()
	addr := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/demo"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Connect(ctx, addr, Config{
		DisplayName:  name,
		Password:     password,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, &recordingHost{t: t})
	if err != nil {
		t.Fatalf("Connect(%s): %v", name, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitForBuffer(t *testing.T, c *Client, name string) *Buffer {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, ok := c.Buffer(name); ok {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("buffer %q never synced", name)
	return nil
}

func TestHandshakeWithoutPasswordAssignsDistinctSites(t *testing.T) {
	ts, _ := testHTTPServer(t, "")

	c1 := connectClient(t, ts, "alice", "")
	go c1.Run(context.Background())
	c2 := connectClient(t, ts, "bob", "")
	go c2.Run(context.Background())

	if c1.SiteID == 0 || c2.SiteID == 0 {
		t.Error("neither client should be assigned the reserved server site 0")
	}
	if c1.SiteID == c2.SiteID {
		t.Error("distinct clients must receive distinct site IDs")
	}
}

func TestHandshakeWithPasswordRequiresCorrectResponse(t *testing.T) {
	ts, _ := testHTTPServer(t, "sesame")

	good := connectClient(t, ts, "alice", "sesame")
	go good.Run(context.Background())
	if good.SiteID == 0 {
		t.Error("correct password should succeed and assign a real site")
	}

	addr := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/demo"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Connect(ctx, addr, Config{
		DisplayName: "eve", Password: "wrong",
		ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second,
	}, &recordingHost{t: t})
	if err == nil {
		t.Error("a wrong password must be rejected")
	}
}

func TestInsertBroadcastsAcrossWireAndConverges(t *testing.T) {
	// One client's insert is rebroadcast by the hub and applied by the
	// other, exercised over real JSON-over-WebSocket framing rather than
	// in-process Replica calls.
	ts, _ := testHTTPServer(t, "")

	c1 := connectClient(t, ts, "alice", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c1.Run(ctx)
	c2 := connectClient(t, ts, "bob", "")
	go c2.Run(ctx)

	b1 := waitForBuffer(t, c1, "scratch")
	b2 := waitForBuffer(t, c2, "scratch")

	ops := b1.Replica().OnLocalInsert(0, []rune("hi"))
	for _, op := range ops {
		if err := c1.Send(ctx, protocol.Msg{Insert: &protocol.InsertMsg{
			Buffer: "scratch", ID: protocol.EncodeID(op.ID), PosHint: op.PosHint, Content: op.Content,
		}}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b2.Replica().Document().Text() != "hi" {
		time.Sleep(5 * time.Millisecond)
	}
	if got := b2.Replica().Document().Text(); got != "hi" {
		t.Fatalf("peer never converged: got %q", got)
	}
}
