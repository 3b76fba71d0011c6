package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/protocol"
	"github.com/lfbot-project/lfbot/internal/ribbon"
)

type fakeBot struct {
	snap       ribbon.Snapshot
	chats      []string
	joins      []string
	brackets   []string
	left       int
	reconnects int
	err        error
}

func (b *fakeBot) Snapshot() ribbon.Snapshot { return b.snap }

func (b *fakeBot) Reconnect() error {
	b.reconnects++
	return b.err
}

func (b *fakeBot) Chat(_ context.Context, content string) error {
	b.chats = append(b.chats, content)
	return b.err
}

func (b *fakeBot) JoinRoom(_ context.Context, code string) error {
	b.joins = append(b.joins, code)
	return b.err
}

func (b *fakeBot) LeaveRoom(context.Context) error {
	b.left++
	return b.err
}

func (b *fakeBot) SwitchBracket(_ context.Context, bracket string) error {
	b.brackets = append(b.brackets, bracket)
	return b.err
}

func run(t *testing.T, bot *fakeBot, bus *events.EventBus, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := NewCLI(bot, bus, strings.NewReader(input), &out)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CLI did not stop at end of input")
	}
	return out.String()
}

func TestCommandsDriveTheBot(t *testing.T) {
	bot := &fakeBot{}
	out := run(t, bot, events.NewEventBus(), "say good game all\njoin abcd\nspectate\nplay\nleave\nreconnect\n")

	assert.Equal(t, []string{"good game all"}, bot.chats)
	assert.Equal(t, []string{"abcd"}, bot.joins)
	assert.Equal(t, []string{protocol.BracketSpectator, protocol.BracketPlayer}, bot.brackets)
	assert.Equal(t, 1, bot.left)
	assert.Equal(t, 1, bot.reconnects)
	assert.Contains(t, out, "Joining room ABCD")
	assert.Contains(t, out, "Reconnection initiated")
}

func TestUsageErrors(t *testing.T) {
	bot := &fakeBot{}
	out := run(t, bot, events.NewEventBus(), "say\njoin\nfrobnicate\n")

	assert.Contains(t, out, "Error: usage: say <text>")
	assert.Contains(t, out, "Error: usage: join <code>")
	assert.Contains(t, out, "Unknown command: 'frobnicate'")
	assert.Empty(t, bot.chats)
}

func TestBotErrorsAreReported(t *testing.T) {
	bot := &fakeBot{err: ribbon.ErrNotConnected}
	out := run(t, bot, events.NewEventBus(), "reconnect\n")

	assert.Contains(t, out, "Error: not connected")
	assert.NotContains(t, out, "Reconnection initiated")
}

func TestStatusTable(t *testing.T) {
	bot := &fakeBot{snap: ribbon.Snapshot{
		Conn:             ribbon.ConnOpen,
		Phase:            ribbon.PhaseAuthorized,
		Epoch:            "ep-1",
		Endpoint:         "/ribbon/worker-1",
		Session:          &protocol.Session{RibbonID: "r1", TokenID: "t1"},
		User:             protocol.User{ID: "bot-id", Username: "lfbot"},
		RecvCursor:       17,
		HeartbeatRunning: true,
		SignatureVersion: "6.2.0",
	}}
	out := run(t, bot, events.NewEventBus(), "status\n")

	for _, want := range []string{"open", "authorized", "ep-1", "/ribbon/worker-1", "r1", "lfbot (bot-id)", "17", "running", "6.2.0"} {
		assert.Contains(t, out, want)
	}
}

func TestRoomTable(t *testing.T) {
	bot := &fakeBot{}
	out := run(t, bot, events.NewEventBus(), "room\n")
	assert.Contains(t, out, "Not in a room")

	bot.snap.Room = &ribbon.Room{ID: "ABCD", Name: "fun", BoardWidth: 10}
	out = run(t, bot, events.NewEventBus(), "room\n")
	assert.Contains(t, out, "ABCD")
	assert.Contains(t, out, "no (options.boardwidth=4)")

	bot.snap.Room = &ribbon.Room{ID: "ABCD", BoardWidth: 4}
	out = run(t, bot, events.NewEventBus(), "room\n")
	assert.Contains(t, out, "yes")
}

func TestQuitEmitsShutdown(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventShutdown, "test", func(ctx context.Context, e events.Event) error {
		got <- e
		return nil
	})

	run(t, &fakeBot{}, bus, "quit\n")

	select {
	case e := <-got:
		assert.Equal(t, "cli", e.Source)
	case <-time.After(time.Second):
		t.Fatal("shutdown not emitted")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	c := NewCLI(&fakeBot{}, events.NewEventBus(), blockingReader{}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "CLI ignored cancellation")
	}
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) { select {} }
