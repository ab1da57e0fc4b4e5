// Command scribe is a minimal non-UI host exercising the wire protocol
// end-to-end: it prints buffer content to stdout and accepts line-based
// insert/delete commands, standing in for the terminal/editor integration
// that spec.md §1 places out of scope.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/collabtext/scribe/internal/protocol"
	"github.com/collabtext/scribe/pkg/crdt"
	"github.com/collabtext/scribe/pkg/session"
)

// stdoutHost implements crdt.Host by printing a terse description of each
// remote mutation; a real editor integration would instead splice its
// buffer and move point/overlays.
type stdoutHost struct {
	buffer *session.Buffer
}

func (h *stdoutHost) ApplyRemoteInsert(beg, end int) {
	fmt.Printf("[remote insert %d..%d]%s\n", beg, end, h.text())
}

func (h *stdoutHost) ApplyRemoteDelete(beg, end int) {
	fmt.Printf("[remote delete %d..%d]%s\n", beg, end, h.text())
}

// text returns the current buffer contents, or "" before the first sync
// has been applied and buffer is set.
func (h *stdoutHost) text() string {
	if h.buffer == nil {
		return ""
	}
	return fmt.Sprintf(" %q", h.buffer.Replica().Document().Text())
}

func (h *stdoutHost) RenderRemoteCursor(site uint16, state crdt.CursorState, cleared bool) {
	if cleared {
		fmt.Printf("[site %d cursor cleared]\n", site)
		return
	}
	fmt.Printf("[site %d cursor at %d]\n", site, state.Point)
}

func (h *stdoutHost) RenderOverlay(o crdt.Overlay, removed bool) {
	if removed {
		fmt.Printf("[overlay %v removed]\n", o.Key)
		return
	}
	fmt.Printf("[overlay %v %s %d..%d]\n", o.Key, o.Species, o.Start, o.End)
}

func main() {
	addr := flag.String("addr", "ws://localhost:3030/api/socket/default", "session websocket URL")
	name := flag.String("name", "scribe-client", "display name")
	password := flag.String("password", "", "session password, if required")
	buffer := flag.String("buffer", "scratch", "buffer name to operate on")
	flag.Parse()

	ctx := context.Background()

	host := &stdoutHost{}
	client, err := session.Connect(ctx, *addr, session.Config{
		DisplayName:  *name,
		Password:     *password,
		ReadTimeout:  30 * time.Minute,
		WriteTimeout: 10 * time.Second,
	}, host)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Printf("connected as site %d, session %q\n", client.SiteID, client.SessionName)

	go func() {
		if err := client.Run(ctx); err != nil {
			log.Printf("connection ended: %v", err)
			os.Exit(1)
		}
	}()

	fmt.Println("commands: insert <pos> <text> | delete <beg> <end> | print | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, " ", 3)
		if len(fields) == 0 || fields[0] == "" {
			continue
		}

		b, ok := client.Buffer(*buffer)
		if !ok {
			fmt.Println("buffer not yet synced")
			continue
		}
		host.buffer = b

		switch fields[0] {
		case "insert":
			if len(fields) < 3 {
				fmt.Println("usage: insert <pos> <text>")
				continue
			}
			pos, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("bad position:", err)
				continue
			}
			ops := b.Replica().OnLocalInsert(pos, []rune(fields[2]))
			for _, op := range ops {
				_ = client.Send(ctx, protocol.Msg{Insert: &protocol.InsertMsg{
					Buffer: *buffer, ID: protocol.EncodeID(op.ID), PosHint: op.PosHint, Content: op.Content,
				}})
			}
		case "delete":
			if len(fields) < 2 {
				fmt.Println("usage: delete <beg> <end>")
				continue
			}
			parts := strings.Fields(strings.Join(fields[1:], " "))
			if len(parts) < 2 {
				fmt.Println("usage: delete <beg> <end>")
				continue
			}
			beg, err1 := strconv.Atoi(parts[0])
			end, err2 := strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil {
				fmt.Println("bad range")
				continue
			}
			op := b.Replica().OnLocalDelete(beg, end)
			_ = client.Send(ctx, protocol.Msg{Delete: &protocol.DeleteMsg{
				Buffer: *buffer, PosHint: op.PosHint, Runs: protocol.EncodeDeletedRuns(op.Runs),
			}})
		case "print":
			fmt.Printf("%q\n", b.Replica().Document().Text())
		case "quit":
			client.Close()
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
