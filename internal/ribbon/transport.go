package ribbon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout       = 30 * time.Second
	closeFrameTimeout = time.Second
)

// Transport is one open socket carrying text frames.
// WriteMessage is not safe for concurrent use; the client serializes writes.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Transport to a full ws:// or wss:// URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Header http.Header
}

// Dial connects and returns a text-frame transport.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: dialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

// ReadMessage returns the next text frame. Normal and going-away closes
// are reported as ErrSocketClosed.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %w", ErrSocketClosed, err)
			}
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and drops the connection.
func (t *wsTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
	return t.conn.Close()
}
