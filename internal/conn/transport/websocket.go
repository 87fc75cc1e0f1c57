package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket implements PushTransport over gorilla/websocket.
type WebSocket struct {
	dialer *websocket.Dialer
}

// NewWebSocket creates a push transport with the given handshake timeout.
func NewWebSocket(handshakeTimeout time.Duration) *WebSocket {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocket{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Open dials the URL and starts a read loop dispatching to the callbacks.
func (w *WebSocket) Open(ctx context.Context, url string, cb Callbacks) (PushConn, error) {
	conn, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	c := &wsConn{conn: conn}
	go c.readLoop(cb)
	return c, nil
}

type wsConn struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

// Close tears down the channel locally. The read loop reports a nil
// close error in that case.
func (c *wsConn) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

func (c *wsConn) readLoop(cb Callbacks) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				if cb.OnClose != nil {
					cb.OnClose(nil)
				}
				return
			}
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("websocket read: %w", err))
			}
			if cb.OnClose != nil {
				cb.OnClose(fmt.Errorf("websocket closed: %w", err))
			}
			return
		}
		if cb.OnMessage != nil {
			cb.OnMessage(payload)
		}
	}
}
