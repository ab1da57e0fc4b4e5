package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/collabtext/scribe/internal/protocol"
	"github.com/collabtext/scribe/pkg/crdt"
)

// Client is the client role of spec.md §4.F / §6 connect(...): it dials a
// hub, performs the hello/challenge handshake, applies the greeting, and
// from then on only applies broadcast messages — it never rebroadcasts.
type Client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	buffers map[string]*Buffer

	SiteID      uint16
	SessionName string

	host crdt.Host

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Config carries the explicit parameters that replace the original
// system's interactive prompts (spec.md §9 design note).
type Config struct {
	DisplayName  string
	Password     string // empty if the session has none
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connect dials addr, authenticates, and returns a Client once the server
// has sent login. host receives remote-apply callbacks for every buffer
// the server subsequently syncs or updates.
func Connect(ctx context.Context, addr string, cfg Config, host crdt.Host) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}

	c := &Client{
		conn:         conn,
		buffers:      make(map[string]*Buffer),
		host:         host,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}

	if err := c.handshake(ctx, cfg); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context, cfg Config) error {
	if err := c.write(ctx, protocol.Msg{Hello: &protocol.HelloMsg{Name: cfg.DisplayName}}); err != nil {
		return err
	}

	var msg protocol.Msg
	if err := c.read(ctx, &msg); err != nil {
		return err
	}

	if msg.Challenge != nil {
		response := ComputeResponse(cfg.Password, msg.Challenge.Salt)
		if err := c.write(ctx, protocol.Msg{Hello: &protocol.HelloMsg{Name: cfg.DisplayName, Response: response}}); err != nil {
			return err
		}
		if err := c.read(ctx, &msg); err != nil {
			return err
		}
	}

	if msg.Login == nil {
		return fmt.Errorf("session: protocol violation: expected login, authentication likely rejected")
	}
	c.SiteID = msg.Login.SiteID
	c.SessionName = msg.Login.SessionName
	return nil
}

// Buffer returns the client's local replica of a named buffer, if the
// server has synced it.
func (c *Client) Buffer(name string) (*Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buffers[name]
	return b, ok
}

// Run drains inbound messages and applies them until the connection
// closes or ctx is canceled. It never rebroadcasts (spec.md §4.F: "When a
// client receives an operation, it applies locally and does not forward").
func (c *Client) Run(ctx context.Context) error {
	for {
		var msg protocol.Msg
		if err := c.read(ctx, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		if err := c.apply(msg); err != nil {
			return fmt.Errorf("session: protocol violation: %w", err)
		}
	}
}

func (c *Client) apply(msg protocol.Msg) error {
	switch {
	case msg.Sync != nil:
		return c.applySync(msg.Sync)
	case msg.Desync != nil:
		c.mu.Lock()
		delete(c.buffers, msg.Desync.Buffer)
		c.mu.Unlock()
		return nil
	case msg.Insert != nil:
		return c.withBuffer(msg.Insert.Buffer, func(b *Buffer) error {
			id, err := protocol.DecodeID(msg.Insert.ID)
			if err != nil {
				return err
			}
			b.ApplyInsert(id, msg.Insert.PosHint, msg.Insert.Content)
			return nil
		})
	case msg.Delete != nil:
		return c.withBuffer(msg.Delete.Buffer, func(b *Buffer) error {
			runs, err := protocol.DecodeDeletedRuns(msg.Delete.Runs)
			if err != nil {
				return err
			}
			b.ApplyDelete(msg.Delete.PosHint, runs)
			return nil
		})
	case msg.Cursor != nil:
		return c.withBuffer(msg.Cursor.Buffer, func(b *Buffer) error {
			return applyCursorMsg(b.Replica(), msg.Cursor)
		})
	case msg.Contact != nil:
		return nil // presence display is a host concern
	case msg.Focus != nil:
		return nil
	case msg.OverlayAdd != nil:
		return c.withBuffer(msg.OverlayAdd.Buffer, func(b *Buffer) error {
			startID, err := protocol.DecodeID(msg.OverlayAdd.StartID)
			if err != nil {
				return err
			}
			endID, err := protocol.DecodeID(msg.OverlayAdd.EndID)
			if err != nil {
				return err
			}
			key := crdt.OverlayKey{Site: msg.OverlayAdd.Site, Clock: msg.OverlayAdd.Clock}
			b.Replica().ApplyOverlayAdd(key, msg.OverlayAdd.Species, msg.OverlayAdd.FrontAdvance, msg.OverlayAdd.RearAdvance, startID, endID)
			return nil
		})
	case msg.OverlayMove != nil:
		return c.withBuffer(msg.OverlayMove.Buffer, func(b *Buffer) error {
			startID, err := protocol.DecodeID(msg.OverlayMove.StartID)
			if err != nil {
				return err
			}
			endID, err := protocol.DecodeID(msg.OverlayMove.EndID)
			if err != nil {
				return err
			}
			key := crdt.OverlayKey{Site: msg.OverlayMove.Site, Clock: msg.OverlayMove.Clock}
			b.Replica().ApplyOverlayMove(key, startID, endID)
			return nil
		})
	case msg.OverlayPut != nil:
		return c.withBuffer(msg.OverlayPut.Buffer, func(b *Buffer) error {
			key := crdt.OverlayKey{Site: msg.OverlayPut.Site, Clock: msg.OverlayPut.Clock}
			b.Replica().ApplyOverlayPut(key, msg.OverlayPut.Prop, msg.OverlayPut.Value)
			return nil
		})
	case msg.OverlayRemove != nil:
		return c.withBuffer(msg.OverlayRemove.Buffer, func(b *Buffer) error {
			key := crdt.OverlayKey{Site: msg.OverlayRemove.Site, Clock: msg.OverlayRemove.Clock}
			b.Replica().ApplyOverlayRemove(key)
			return nil
		})
	default:
		return fmt.Errorf("unrecognized message from server")
	}
}

func applyCursorMsg(r *crdt.Replica, in *protocol.CursorMsg) error {
	if in.PointID == nil {
		r.ApplyRemoteCursor(in.SiteID, nil, nil, true)
		return nil
	}
	pointID, err := protocol.DecodeID(*in.PointID)
	if err != nil {
		return err
	}
	var markID crdt.ID
	if in.MarkID != nil {
		markID, err = protocol.DecodeID(*in.MarkID)
		if err != nil {
			return err
		}
	}
	r.ApplyRemoteCursor(in.SiteID, pointID, markID, false)
	return nil
}

func (c *Client) applySync(in *protocol.SyncMsg) error {
	runs, err := protocol.DecodeRuns(in.Runs)
	if err != nil {
		return err
	}
	doc, err := crdt.LoadIDs(in.Content, runs)
	if err != nil {
		return err
	}

	b := NewBuffer(in.Buffer, in.MajorMode, c.SiteID)
	b.replica = crdt.NewReplicaFromDocument(c.SiteID, c.host, doc)

	c.mu.Lock()
	c.buffers[in.Buffer] = b
	c.mu.Unlock()
	return nil
}

func (c *Client) withBuffer(name string, fn func(*Buffer) error) error {
	c.mu.Lock()
	b, ok := c.buffers[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown buffer %q", name)
	}
	return fn(b)
}

// Send transmits a message the client derived locally (insert, delete,
// cursor, focus, overlay-*) to the hub.
func (c *Client) Send(ctx context.Context, msg protocol.Msg) error {
	return c.write(ctx, msg)
}

func (c *Client) write(ctx context.Context, msg protocol.Msg) error {
	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, c.conn, msg)
}

func (c *Client) read(ctx context.Context, msg *protocol.Msg) error {
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	return wsjson.Read(readCtx, c.conn, msg)
}

// Close ends the session from the client side (spec.md §6 stopSession()).
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
