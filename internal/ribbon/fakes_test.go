package ribbon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lfbot-project/lfbot/internal/protocol"
)

// fakeTransport is an in-memory socket. Frames pushed with push are read by
// the client; frames the client writes are recorded.
type fakeTransport struct {
	in     chan []byte
	closed chan struct{}
	failCh chan error
	once   sync.Once

	mu       sync.Mutex
	sent     [][]byte
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
		failCh: make(chan error, 1),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case err := <-t.failCh:
		return nil, err
	case <-t.closed:
		return nil, errors.New("use of closed network connection")
	case data, ok := <-t.in:
		if !ok {
			return nil, fmt.Errorf("%w: close 1000 (normal)", ErrSocketClosed)
		}
		return data, nil
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) push(frame string) {
	t.in <- []byte(frame)
}

// fail makes the next read return err.
func (t *fakeTransport) fail(err error) {
	t.failCh <- err
}

func (t *fakeTransport) messages(tb testing.TB) []protocol.Message {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]protocol.Message, 0, len(t.sent))
	for _, frame := range t.sent {
		msg, err := protocol.Decode(frame)
		require.NoError(tb, err, "client sent undecodable frame %s", frame)
		out = append(out, msg)
	}
	return out
}

func (t *fakeTransport) commands(tb testing.TB) []string {
	tb.Helper()
	var out []string
	for _, msg := range t.messages(tb) {
		out = append(out, msg.Command())
	}
	return out
}

// fakeDialer hands out queued transports and fails once the queue is empty.
type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type fakeFriends struct {
	accepted chan string
}

func (f *fakeFriends) AcceptFriend(_ context.Context, userID string) error {
	f.accepted <- userID
	return nil
}

// newReactionClient returns a client with an open epoch on a fake socket.
// Reactions run inline so tests can inspect sends right after dispatch.
func newReactionClient(t *testing.T, opts Options) (*Client, *epoch, *fakeTransport) {
	t.Helper()

	c := NewClient(opts)
	c.spawn = func(f func()) { f() }

	tr := newFakeTransport()
	ep := newEpoch(context.Background(), tr, c.logger)
	c.mu.Lock()
	c.cur = ep
	c.st.conn = ConnOpen
	c.mu.Unlock()

	t.Cleanup(func() {
		ep.end(context.Canceled)
		c.stopHeartbeat()
	})
	return c, ep, tr
}

func deliver(t *testing.T, c *Client, ep *epoch, frame string) {
	t.Helper()
	msg, err := protocol.Decode([]byte(frame))
	require.NoError(t, err)
	c.dispatch(ep, msg)
}

var testUser = protocol.User{ID: "bot-id", Username: "lfbot"}
