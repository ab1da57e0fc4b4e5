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
	"github.com/collabtext/scribe/pkg/logger"
)

// Connection is one server-side client connection: the authenticated
// site, its socket, and an outbound queue drained by a writer goroutine.
// Generalizes the teacher's connection.go from one document per socket to
// many named buffers multiplexed over a single socket.
type Connection struct {
	hub         *Hub
	site        uint16
	displayName string
	conn        *websocket.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration

	send   chan protocol.Msg
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Accept performs the authentication handshake and, on success, returns a
// registered Connection ready for Handle. On failure it returns a non-nil
// error and the caller must close the socket (spec.md §7: a bad HMAC
// drops the connection without further feedback).
func Accept(ctx context.Context, hub *Hub, conn *websocket.Conn, readTimeout, writeTimeout time.Duration) (*Connection, error) {
	var hello protocol.Msg
	readCtx, cancel := context.WithTimeout(ctx, readTimeout)
	err := wsjson.Read(readCtx, conn, &hello)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("session: read hello: %w", err)
	}
	if hello.Hello == nil {
		return nil, fmt.Errorf("session: protocol violation: expected hello")
	}

	if password, required := hub.Password(); required {
		challenge, err := GenerateChallenge()
		if err != nil {
			return nil, fmt.Errorf("session: generate challenge: %w", err)
		}
		writeCtx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err = wsjson.Write(writeCtx, conn, protocol.Msg{Challenge: &protocol.ChallengeMsg{Salt: challenge}})
		wcancel()
		if err != nil {
			return nil, fmt.Errorf("session: send challenge: %w", err)
		}

		var answer protocol.Msg
		readCtx, rcancel := context.WithTimeout(ctx, readTimeout)
		err = wsjson.Read(readCtx, conn, &answer)
		rcancel()
		if err != nil {
			return nil, fmt.Errorf("session: read hello response: %w", err)
		}
		if answer.Hello == nil || !VerifyResponse(password, challenge, answer.Hello.Response) {
			return nil, fmt.Errorf("session: authentication failed")
		}
		hello = answer
	}

	site, err := hub.allocateSite()
	if err != nil {
		return nil, err
	}

	cctx, cancelFn := context.WithCancel(ctx)
	c := &Connection{
		hub:          hub,
		site:         site,
		displayName:  hello.Hello.Name,
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		send:         make(chan protocol.Msg, hub.broadcastBufferSize),
		ctx:          cctx,
		cancel:       cancelFn,
	}
	return c, nil
}

// Handle runs the greeting sequence and the connection's read/write
// loops until the socket closes or ctx is canceled.
func (c *Connection) Handle(ctx context.Context) error {
	defer c.cleanup()

	c.hub.register(c)
	c.hub.SetFocus(c.site, c.displayName, "")

	if err := c.greet(); err != nil {
		return fmt.Errorf("session: greet: %w", err)
	}

	c.hub.Broadcast(c.site, protocol.Msg{Contact: &protocol.ContactMsg{
		SiteID:      c.site,
		DisplayName: c.displayName,
	}})

	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)

	err := c.readLoop(ctx)

	c.cancel()
	<-writerDone
	return err
}

// enqueue is safe to call from any goroutine; it drops the message,
// logging, rather than block a slow client indefinitely.
func (c *Connection) enqueue(msg protocol.Msg) {
	select {
	case c.send <- msg:
	default:
		logger.Error("session: site %d send buffer full, dropping message", c.site)
	}
}

// Close tears down the connection from outside its own goroutines.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (c *Connection) greet() error {
	login := protocol.Msg{Login: &protocol.LoginMsg{SiteID: c.site, SessionName: c.hub.sessionName}}
	if err := c.write(login); err != nil {
		return err
	}

	for _, b := range c.hub.Buffers() {
		b.Subscribe(c.site)
		if err := c.write(protocol.Msg{Sync: ptrSync(b.Snapshot())}); err != nil {
			return err
		}

		for _, site := range b.Replica().Cursors().Sites() {
			state, ok := b.Replica().Cursors().Get(site)
			if !ok {
				continue
			}
			if err := c.write(cursorMsgFor(b.Name(), site, b.Replica(), state)); err != nil {
				return err
			}
		}
		for _, o := range b.Replica().ResolvedOverlays() {
			if err := c.write(overlayAddMsgFor(b.Name(), o)); err != nil {
				return err
			}
			for prop, value := range o.Props {
				if err := c.write(protocol.Msg{OverlayPut: &protocol.OverlayPutMsg{
					Buffer: b.Name(), Site: o.Key.Site, Clock: o.Key.Clock, Prop: prop, Value: value,
				}}); err != nil {
					return err
				}
			}
		}
	}

	for site, name := range c.hub.Contacts() {
		if site == c.site {
			continue
		}
		if err := c.write(protocol.Msg{Contact: &protocol.ContactMsg{SiteID: site, DisplayName: name}}); err != nil {
			return err
		}
	}
	return nil
}

func ptrSync(s protocol.SyncMsg) *protocol.SyncMsg { return &s }

func cursorMsgFor(buffer string, site uint16, r *crdt.Replica, state crdt.CursorState) protocol.Msg {
	pointID := protocol.EncodeID(crdt.CursorIDAt(r.Document(), state.Point))
	msg := &protocol.CursorMsg{Buffer: buffer, SiteID: site, PointHint: state.Point, PointID: &pointID}
	if state.HasMark {
		markID := protocol.EncodeID(crdt.CursorIDAt(r.Document(), state.Mark))
		msg.MarkHint = state.Mark
		msg.MarkID = &markID
	}
	return protocol.Msg{Cursor: msg}
}

func overlayAddMsgFor(buffer string, o crdt.Overlay) protocol.Msg {
	return protocol.Msg{OverlayAdd: &protocol.OverlayAddMsg{
		Buffer: buffer, Site: o.Key.Site, Clock: o.Key.Clock, Species: o.Species,
		FrontAdvance: o.FrontAdvance, RearAdvance: o.RearAdvance,
		StartHint: o.Start, StartID: protocol.EncodeID(o.StartID),
		EndHint: o.End, EndID: protocol.EncodeID(o.EndID),
	}}
}

func (c *Connection) writeLoop(done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(msg); err != nil {
				logger.Error("session: write to site %d failed: %v", c.site, err)
				c.cancel()
				return
			}
		}
	}
}

func (c *Connection) write(msg protocol.Msg) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, c.conn, msg)
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		var msg protocol.Msg
		readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		err := wsjson.Read(readCtx, c.conn, &msg)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if err := c.dispatch(msg); err != nil {
			logger.Error("session: protocol violation from site %d: %v", c.site, err)
			return err
		}
	}
}

// dispatch rebroadcasts an inbound message verbatim to every other
// connected client (spec.md §4.F broadcast rule) and then applies it to
// its buffer; contact/login/sync/challenge, which only the server
// originates, are rejected as errors.
func (c *Connection) dispatch(msg protocol.Msg) error {
	switch {
	case msg.Insert != nil:
		return c.handleInsert(msg.Insert)
	case msg.Delete != nil:
		return c.handleDelete(msg.Delete)
	case msg.Cursor != nil:
		return c.handleCursor(msg.Cursor)
	case msg.Focus != nil:
		c.hub.SetFocus(c.site, c.displayName, msg.Focus.Buffer)
		c.hub.Broadcast(c.site, msg)
		return nil
	case msg.OverlayAdd != nil:
		return c.handleOverlayAdd(msg.OverlayAdd)
	case msg.OverlayMove != nil:
		return c.handleOverlayMove(msg.OverlayMove)
	case msg.OverlayPut != nil:
		c.hub.Broadcast(c.site, msg)
		return c.withBuffer(msg.OverlayPut.Buffer, func(b *Buffer) error {
			b.Replica().ApplyOverlayPut(crdt.OverlayKey{Site: msg.OverlayPut.Site, Clock: msg.OverlayPut.Clock}, msg.OverlayPut.Prop, msg.OverlayPut.Value)
			return nil
		})
	case msg.OverlayRemove != nil:
		c.hub.Broadcast(c.site, msg)
		return c.withBuffer(msg.OverlayRemove.Buffer, func(b *Buffer) error {
			b.Replica().ApplyOverlayRemove(crdt.OverlayKey{Site: msg.OverlayRemove.Site, Clock: msg.OverlayRemove.Clock})
			return nil
		})
	case msg.Get != nil:
		return nil // reserved, spec.md §9 Open Question 3: no-op
	default:
		return fmt.Errorf("unrecognized or server-only message")
	}
}

func (c *Connection) withBuffer(name string, fn func(*Buffer) error) error {
	b, ok := c.hub.Buffer(name)
	if !ok {
		return fmt.Errorf("unknown buffer %q", name)
	}
	return fn(b)
}

func (c *Connection) handleInsert(in *protocol.InsertMsg) error {
	id, err := protocol.DecodeID(in.ID)
	if err != nil {
		return err
	}
	c.hub.Broadcast(c.site, protocol.Msg{Insert: in})
	return c.withBuffer(in.Buffer, func(b *Buffer) error {
		b.ApplyInsert(id, in.PosHint, in.Content)
		return nil
	})
}

func (c *Connection) handleDelete(in *protocol.DeleteMsg) error {
	runs, err := protocol.DecodeDeletedRuns(in.Runs)
	if err != nil {
		return err
	}
	c.hub.Broadcast(c.site, protocol.Msg{Delete: in})
	return c.withBuffer(in.Buffer, func(b *Buffer) error {
		b.ApplyDelete(in.PosHint, runs)
		return nil
	})
}

func (c *Connection) handleCursor(in *protocol.CursorMsg) error {
	c.hub.Broadcast(c.site, protocol.Msg{Cursor: in})
	return c.withBuffer(in.Buffer, func(b *Buffer) error {
		if in.PointID == nil {
			b.Replica().Cursors().Clear(in.SiteID)
			return nil
		}
		pointID, err := protocol.DecodeID(*in.PointID)
		if err != nil {
			return err
		}
		state := crdt.CursorState{Point: crdt.ResolveCursorID(b.Replica().Document(), pointID)}
		if in.MarkID != nil {
			markID, err := protocol.DecodeID(*in.MarkID)
			if err != nil {
				return err
			}
			state.Mark = crdt.ResolveCursorID(b.Replica().Document(), markID)
			state.HasMark = true
		}
		b.Replica().Cursors().Set(in.SiteID, state)
		return nil
	})
}

func (c *Connection) handleOverlayAdd(in *protocol.OverlayAddMsg) error {
	startID, err := protocol.DecodeID(in.StartID)
	if err != nil {
		return err
	}
	endID, err := protocol.DecodeID(in.EndID)
	if err != nil {
		return err
	}
	c.hub.Broadcast(c.site, protocol.Msg{OverlayAdd: in})
	return c.withBuffer(in.Buffer, func(b *Buffer) error {
		key := crdt.OverlayKey{Site: in.Site, Clock: in.Clock}
		b.Replica().ApplyOverlayAdd(key, in.Species, in.FrontAdvance, in.RearAdvance, startID, endID)
		return nil
	})
}

func (c *Connection) handleOverlayMove(in *protocol.OverlayMoveMsg) error {
	startID, err := protocol.DecodeID(in.StartID)
	if err != nil {
		return err
	}
	endID, err := protocol.DecodeID(in.EndID)
	if err != nil {
		return err
	}
	c.hub.Broadcast(c.site, protocol.Msg{OverlayMove: in})
	return c.withBuffer(in.Buffer, func(b *Buffer) error {
		key := crdt.OverlayKey{Site: in.Site, Clock: in.Clock}
		b.Replica().ApplyOverlayMove(key, startID, endID)
		return nil
	})
}

// cleanup runs once, on any path out of Handle: synthesizes the
// clear-contact/clear-cursor broadcasts of spec.md §4.F's disconnect rule
// and unregisters the connection.
func (c *Connection) cleanup() {
	for _, b := range c.hub.Buffers() {
		b.Unsubscribe(c.site)
		b.Replica().Cursors().Clear(c.site)
		c.hub.Broadcast(c.site, protocol.Msg{Cursor: &protocol.CursorMsg{Buffer: b.Name(), SiteID: c.site}})
	}
	c.hub.Broadcast(c.site, protocol.Msg{Contact: &protocol.ContactMsg{SiteID: c.site}})
	c.hub.unregister(c)
	c.Close()
}
