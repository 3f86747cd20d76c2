package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-chat/internal/archive"
	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/room/memory"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets the test read what runChat writes from another goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newSession(t *testing.T, network *memory.Network, id, name string) *chat.Session {
	t.Helper()

	s, err := chat.NewSession(
		chat.Config{AppID: "cli-test", RoomID: "lobby", UserName: name},
		chat.Options{Transport: network.Transport(id), Logger: logger.Discard()},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), want)
	}, 2*time.Second, 10*time.Millisecond, "output never contained %q:\n%s", want, out)
}

func TestRunChat(t *testing.T) {
	network := memory.NewNetwork()
	alice := newSession(t, network, "a", "alice")
	bob := newSession(t, network, "b", "bob")
	ctx := context.Background()

	sub := alice.Subscribe()
	defer sub.Close()
	require.NoError(t, alice.Connect(ctx))

	bobSub := bob.Subscribe()
	defer bobSub.Close()
	require.NoError(t, bob.Connect(ctx))

	in, input := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runChat(ctx, alice, sub, in, out) }()

	waitForOutput(t, out, "* bob joined")

	_, err := bob.SendMessage(ctx, "hi alice")
	require.NoError(t, err)
	waitForOutput(t, out, "bob: hi alice")

	_, err = io.WriteString(input, "hello\n")
	require.NoError(t, err)
	waitForOutput(t, out, "alice (you): hello")

	require.Eventually(t, func() bool {
		for _, m := range bob.Messages() {
			if m.Content == "hello" && m.SenderName == "alice" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	_, _ = io.WriteString(input, "/peers\n")
	waitForOutput(t, out, "* 1 peers: bob")

	_, _ = io.WriteString(input, "/info\n")
	waitForOutput(t, out, "* room lobby (app cli-test) as alice [a], connected, 1 peers")

	_, _ = io.WriteString(input, "/shout\n")
	waitForOutput(t, out, "unknown command /shout")

	require.NoError(t, bob.Disconnect())
	waitForOutput(t, out, "* bob left")

	_, _ = io.WriteString(input, "/quit\n")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runChat did not return after /quit")
	}
}

func TestRunChatStopsOnEOF(t *testing.T) {
	network := memory.NewNetwork()
	alice := newSession(t, network, "a", "alice")
	sub := alice.Subscribe()
	defer sub.Close()

	out := &syncBuffer{}
	err := runChat(context.Background(), alice, sub, strings.NewReader(""), out)
	require.NoError(t, err)
}

func TestRunChatReportsSendErrors(t *testing.T) {
	network := memory.NewNetwork()
	alice := newSession(t, network, "a", "alice")
	sub := alice.Subscribe()
	defer sub.Close()

	in, input := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runChat(context.Background(), alice, sub, in, out) }()

	_, _ = io.WriteString(input, "anyone?\n")
	waitForOutput(t, out, "! ")
	require.Contains(t, out.String(), chat.ErrNotConnected.Error())

	require.NoError(t, input.Close())
	require.NoError(t, <-done)
}

func TestReadLinesStopsWhenDone(t *testing.T) {
	done := make(chan struct{})
	close(done)

	lines := readLines(strings.NewReader("first\nsecond\n"), done)
	select {
	case line, ok := <-lines:
		require.False(t, ok, "got line %q after done", line)
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine did not exit")
	}
}

func TestReadLines(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	var got []string
	for line := range readLines(strings.NewReader("first\nsecond\n"), done) {
		got = append(got, line)
	}
	require.Equal(t, []string{"first", "second"}, got)
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

	got := formatMessage(chat.Message{SenderName: "bob", Content: "hey", Timestamp: ts})
	require.Equal(t, "[09:30:00] bob: hey", got)

	got = formatMessage(chat.Message{SenderName: "alice", Content: "yo", Timestamp: ts, IsLocal: true})
	require.Equal(t, "[09:30:00] alice (you): yo", got)
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite3")
	arc, err := archive.Open(path)
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	ctx := context.Background()
	for i, content := range []string{"first", "second", "third"} {
		_, err := arc.Save(ctx, "lobby", chat.Message{
			ID:         content,
			Content:    content,
			SenderID:   "b",
			SenderName: "bob",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err = arc.Save(ctx, "attic", chat.Message{ID: "x", Content: "dusty", Timestamp: base})
	require.NoError(t, err)
	require.NoError(t, arc.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"history", "--archive", path})
	require.NoError(t, rootCmd.ExecuteContext(ctx))
	require.Equal(t, "attic\nlobby\n", out.String())

	out.Reset()
	rootCmd.SetArgs([]string{"history", "--archive", path, "--room", "lobby", "--limit", "2"})
	require.NoError(t, rootCmd.ExecuteContext(ctx))
	require.Equal(t, "[09:01:00] bob: second\n[09:02:00] bob: third\n", out.String())
}
