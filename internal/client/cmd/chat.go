package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/samber/lo"
)

// runChat reads lines from in until /quit, EOF or ctx is done. Lines
// starting with a slash are commands, everything else is sent to the room.
func runChat(ctx context.Context, session *chat.Session, sub *chat.Subscription, in io.Reader, out io.Writer) error {
	p := newPrinter(out)
	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			p.event(e)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, session, p, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, session *chat.Session, p *printer, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/peers":
		p.peers(session.Peers())
		return false
	case "/info":
		p.info(session.Info(), session.Status())
		return false
	}

	if strings.HasPrefix(line, "/") {
		p.printf("unknown command %s, try /peers, /info or /quit\n", line)
		return false
	}

	// the local echo arrives as an event, even when the broadcast fails
	if _, err := session.SendMessage(ctx, line); err != nil {
		p.printf("! %v\n", err)
	}
	return false
}

// readLines stops handing out lines once done is closed. A read already
// blocked on in still finishes first.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case <-done:
				return
			default:
			}
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

type printer struct {
	out   io.Writer
	seen  map[string]bool
	names map[string]string
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:   out,
		seen:  make(map[string]bool),
		names: make(map[string]string),
	}
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) event(e chat.Event) {
	switch ev := e.(type) {
	case chat.MessageReceived:
		// history merges re-emit messages already on screen
		if p.seen[ev.Message.ID] {
			return
		}
		p.seen[ev.Message.ID] = true
		p.message(ev.Message)
	case chat.PeerJoined:
		p.names[ev.Peer.ID] = ev.Peer.Name
		p.printf("* %s joined\n", ev.Peer.Name)
	case chat.PeerLeft:
		name, ok := p.names[ev.PeerID]
		if !ok {
			name = ev.PeerID
		}
		delete(p.names, ev.PeerID)
		p.printf("* %s left\n", name)
	case chat.StatusChanged:
		if ev.Status == chat.StatusDisconnected {
			p.printf("* %s\n", ev.Status)
		}
	}
}

func (p *printer) message(m chat.Message) {
	p.printf("%s\n", formatMessage(m))
}

func (p *printer) peers(peers []chat.PeerInfo) {
	if len(peers) == 0 {
		p.printf("* nobody else is here\n")
		return
	}
	names := lo.Map(peers, func(item chat.PeerInfo, _ int) string {
		return item.Name
	})
	p.printf("* %d peers: %s\n", len(peers), strings.Join(names, ", "))
}

func (p *printer) info(info chat.RoomInfo, status chat.Status) {
	p.printf("* room %s (app %s) as %s [%s], %s, %d peers\n",
		info.RoomID, info.AppID, info.UserName, info.SelfID, status, info.PeerCount)
}

func formatMessage(m chat.Message) string {
	name := m.SenderName
	if m.IsLocal {
		name += " (you)"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format(time.TimeOnly), name, m.Content)
}
